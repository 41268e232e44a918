package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/katra-project/katra/internal/session"
)

func echoDispatch(ctx context.Context, sess *session.Session, line []byte) []byte {
	out := append([]byte(nil), line...)
	out = append(out, '\n')
	return out
}

func TestServeStdioEchoesEachLine(t *testing.T) {
	in := strings.NewReader("{\"method\":\"a\"}\n{\"method\":\"b\"}\n")
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), in, &out, echoDispatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 || lines[0] != `{"method":"a"}` || lines[1] != `{"method":"b"}` {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestServeStdioRejectsOversizeLine(t *testing.T) {
	huge := strings.Repeat("x", 40*1024)
	in := strings.NewReader(huge + "\n")
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), in, &out, echoDispatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out.String(), `"code":"ERR_PARSE"`) {
		t.Fatalf("expected ERR_PARSE response, got %q", out.String())
	}
}

func TestServeStdioHandlesFinalLineWithoutNewline(t *testing.T) {
	in := strings.NewReader(`{"method":"a"}`)
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), in, &out, echoDispatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimRight(out.String(), "\n") != `{"method":"a"}` {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
