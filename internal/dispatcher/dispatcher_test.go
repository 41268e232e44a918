package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/katra-project/katra/internal/session"
)

func decode(t *testing.T, line []byte) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		t.Fatalf("response did not decode: %v\nline: %s", err, line)
	}
	return env
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := New()
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{"method":"bogus","params":{}}`))
	env := decode(t, resp)
	if env.Error == nil || env.Error.Code != CodeMethod {
		t.Fatalf("expected ERR_METHOD, got %+v", env.Error)
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	d := New()
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{not json`))
	env := decode(t, resp)
	if env.Error == nil || env.Error.Code != CodeParse {
		t.Fatalf("expected ERR_PARSE, got %+v", env.Error)
	}
}

func TestDispatchMissingMethod(t *testing.T) {
	d := New()
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{"params":{}}`))
	env := decode(t, resp)
	if env.Error == nil || env.Error.Code != CodeParams {
		t.Fatalf("expected ERR_PARAMS, got %+v", env.Error)
	}
}

func TestDispatchSuccessStampsMetadata(t *testing.T) {
	d := New()
	d.Register("whoami", func(ctx context.Context, sess *session.Session, params json.RawMessage, opts Options) (any, error) {
		return map[string]string{"chosen_name": sess.ChosenName}, nil
	})
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{"method":"whoami","params":{},"options":{"namespace":"ns1"}}`))
	env := decode(t, resp)
	if env.Error != nil {
		t.Fatalf("expected no error, got %+v", env.Error)
	}
	if env.Metadata.Namespace != "ns1" {
		t.Fatalf("expected namespace ns1, got %q", env.Metadata.Namespace)
	}
	if len(env.Metadata.RequestID) != 36 {
		t.Fatalf("expected a UUID request_id, got %q", env.Metadata.RequestID)
	}
}

func TestDispatchDryRunPerformsNoSideEffects(t *testing.T) {
	d := New()
	called := false
	d.Register("remember", func(ctx context.Context, sess *session.Session, params json.RawMessage, opts Options) (any, error) {
		called = true
		return nil, nil
	})
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{"method":"remember","params":{},"options":{"dry_run":true}}`))
	env := decode(t, resp)
	if called {
		t.Fatal("expected dry_run to skip the handler body")
	}
	if env.Error != nil {
		t.Fatalf("expected synthetic success, got error %+v", env.Error)
	}
}

func TestDispatchWireErrorPropagatesCode(t *testing.T) {
	d := New()
	d.Register("forget", func(ctx context.Context, sess *session.Session, params json.RawMessage, opts Options) (any, error) {
		return nil, &Error{Code: CodeConsentDenied, Message: "ci_consent must be true"}
	})
	sess := session.New(time.Now())
	resp := d.Dispatch(context.Background(), sess, []byte(`{"method":"forget","params":{}}`))
	env := decode(t, resp)
	if env.Error == nil || env.Error.Code != CodeConsentDenied {
		t.Fatalf("expected ERR_CONSENT_DENIED, got %+v", env.Error)
	}
}
