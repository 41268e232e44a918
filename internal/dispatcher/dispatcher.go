package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/katra-project/katra/internal/session"
)

// Handler implements one method. It returns a JSON-marshalable result,
// or an error — callers should return *Error for a specific wire code,
// any other error is reported as ERR_INTERNAL.
type Handler func(ctx context.Context, sess *session.Session, params json.RawMessage, opts Options) (any, error)

// Dispatcher resolves methods against a registry and serializes every
// handler invocation behind a single engine lock, per spec.md §4.7:
// the record store, index, digest store, session registry, and
// mailbox are single-writer data structures in the current design.
type Dispatcher struct {
	mu       sync.Mutex // the "engine lock"
	registry map[string]Handler
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{registry: make(map[string]Handler)}
}

// Register binds a method name to a handler. Not safe to call
// concurrently with Dispatch; register all methods during startup.
func (d *Dispatcher) Register(method string, h Handler) {
	d.registry[method] = h
}

// Dispatch runs the full per-request algorithm of spec.md §4.7 over
// one raw request line, returning one marshaled response line.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, line []byte) []byte {
	env, parseErr := parseEnvelope(line)
	if parseErr != nil {
		return d.errorResponse(env, parseErr)
	}

	handler, ok := d.registry[env.Method]
	if !ok {
		return d.errorResponse(env, &Error{Code: CodeMethod, Message: "unknown method " + env.Method})
	}

	if env.Options.DryRun {
		return d.syntheticResponse(env)
	}

	d.mu.Lock()
	start := time.Now()
	result, err := handler(ctx, sess, env.Params, env.Options)
	duration := time.Since(start)
	d.mu.Unlock()

	return d.finalize(env, result, err, duration)
}

func (d *Dispatcher) finalize(env *Envelope, result any, err error, duration time.Duration) []byte {
	env.Metadata = Metadata{
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DurationMs: duration.Milliseconds(),
		Namespace:  env.Options.Namespace,
	}

	if err != nil {
		var wireErr *Error
		if !errors.As(err, &wireErr) {
			wireErr = &Error{Code: CodeInternal, Message: err.Error()}
		}
		env.Error = wireErr
		env.Result = nil
		return mustMarshal(env)
	}

	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		env.Error = &Error{Code: CodeInternal, Message: "failed to marshal result", Details: marshalErr.Error()}
		env.Result = nil
		return mustMarshal(env)
	}
	env.Result = raw
	env.Error = nil
	return mustMarshal(env)
}

// syntheticResponse implements spec.md §4.7 step 5: dry_run returns a
// success with zero side effects and a fixed payload.
func (d *Dispatcher) syntheticResponse(env *Envelope) []byte {
	env.Metadata = Metadata{
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DurationMs: 0,
		Namespace:  env.Options.Namespace,
	}
	env.Result = json.RawMessage(`{"dry_run":true}`)
	env.Error = nil
	return mustMarshal(env)
}

func (d *Dispatcher) errorResponse(env *Envelope, wireErr *Error) []byte {
	if env == nil {
		env = &Envelope{Options: defaultOptions()}
	}
	env.Error = wireErr
	env.Result = nil
	env.Metadata = Metadata{
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DurationMs: 0,
		Namespace:  env.Options.Namespace,
	}
	return mustMarshal(env)
}

// mustMarshal serializes the envelope; a marshal failure here would
// mean Envelope itself is malformed, which is a programming error, not
// a runtime condition callers can recover from — matching the
// teacher's convention of panicking only on invariants that must never
// fail at runtime.
func mustMarshal(env *Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		panic("dispatcher: envelope failed to marshal: " + err.Error())
	}
	var buf bytes.Buffer
	buf.Write(data)
	buf.WriteByte('\n')
	return buf.Bytes()
}
