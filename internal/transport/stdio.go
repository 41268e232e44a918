// Package transport implements the three wire transports of spec.md
// §4.8: stdio, a Unix-domain socket, and a bounded-client-table TCP
// listener, all accepting the same newline-delimited envelope.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/katra-project/katra/internal/session"
)

// DispatchFunc processes one raw request line for a connection-scoped
// session and returns one raw response line.
type DispatchFunc func(ctx context.Context, sess *session.Session, line []byte) []byte

// ServeStdio reads one newline-delimited request per line from r and
// writes one response per line to w, until EOF closes the process
// (spec.md §4.8). It allocates one Session for the lifetime of the
// process, matching stdio's single implicit connection.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, dispatch DispatchFunc) error {
	sess := session.New(time.Now())
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			if _, werr := w.Write(tooLongResponse()); werr != nil {
				return werr
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			slog.Error("stdio transport read error", "error", err)
			return err
		}

		resp := dispatch(ctx, sess, line)
		if _, err := w.Write(resp); err != nil {
			return err
		}
	}
}
