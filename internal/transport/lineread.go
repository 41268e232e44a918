package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/katra-project/katra/internal/dispatcher"
)

// errLineTooLong signals a request line exceeded MaxLineBytes; the
// caller responds with ERR_PARSE and keeps the connection open,
// draining the remainder of the oversize line first.
var errLineTooLong = errors.New("transport: request line exceeds maximum size")

// readLine reads one newline-delimited line from r, enforcing
// dispatcher.MaxLineBytes per spec.md §4.8. On overflow it drains the
// rest of the line (up to the next '\n') so the reader resyncs for the
// next request, then returns errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// ReadSlice filled the buffer without finding '\n'; keep reading
		// until we either find '\n' (too long, drain it) or hit EOF/err.
		over := len(line) > dispatcher.MaxLineBytes
		for err == bufio.ErrBufferFull {
			line, err = r.ReadSlice('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if over || len(line) > dispatcher.MaxLineBytes {
			return nil, errLineTooLong
		}
	}
	if err != nil {
		if len(line) > 0 && errors.Is(err, io.EOF) {
			// Final line without a trailing newline: still process it.
			if len(line) > dispatcher.MaxLineBytes {
				return nil, errLineTooLong
			}
			return trimNewline(line), nil
		}
		return nil, err
	}
	if len(line) > dispatcher.MaxLineBytes {
		return nil, errLineTooLong
	}
	return trimNewline(line), nil
}

// tooLongResponse builds the ERR_PARSE response for a request line that
// exceeded dispatcher.MaxLineBytes, without routing it through a
// Dispatcher (it never produced a valid envelope to resolve a method).
func tooLongResponse() []byte {
	env := dispatcher.Envelope{
		Options: dispatcher.Options{Namespace: "default"},
		Error:   &dispatcher.Error{Code: dispatcher.CodeParse, Message: "request line exceeds maximum size"},
		Metadata: dispatcher.Metadata{
			RequestID: uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Namespace: "default",
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic("transport: envelope failed to marshal: " + err.Error())
	}
	return append(data, '\n')
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
