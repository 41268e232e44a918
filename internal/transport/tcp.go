package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/katra-project/katra/internal/session"
)

// DefaultTCPAddr is the TCP transport's default bind address, per
// spec.md §4.8.
const DefaultTCPAddr = "127.0.0.1:3141"

// MaxTCPClients bounds the simultaneous client table; connections
// beyond this limit are closed immediately, per spec.md §4.8.
const MaxTCPClients = 32

const healthResponse = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s"
const healthBody = `{"status":"ok"}`

// TCPServer listens on a TCP address with a bounded client table and a
// fixed /health probe path, per spec.md §4.8.
type TCPServer struct {
	Addr       string
	Dispatch   DispatchFunc
	slots      chan struct{}
	activeConn int32
}

// NewTCPServer builds a server bound to addr (DefaultTCPAddr if empty).
func NewTCPServer(addr string, dispatch DispatchFunc) *TCPServer {
	if addr == "" {
		addr = DefaultTCPAddr
	}
	return &TCPServer{
		Addr:     addr,
		Dispatch: dispatch,
		slots:    make(chan struct{}, MaxTCPClients),
	}
}

// Serve listens and accepts connections until ctx is canceled. The
// accept loop wakes every second via a listener deadline so shutdown
// is observed promptly even with no inbound traffic, matching the
// teacher's signal-driven Stop() but adapted to context cancellation.
func (t *TCPServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return errors.New("transport: expected a TCP listener")
	}
	defer func() { _ = tcpLn.Close() }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := tcpLn.SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return err
		}
		conn, err := tcpLn.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case t.slots <- struct{}{}:
			atomic.AddInt32(&t.activeConn, 1)
			go func() {
				defer func() {
					<-t.slots
					atomic.AddInt32(&t.activeConn, -1)
				}()
				t.handleConn(ctx, conn)
			}()
		default:
			// Client table full; reject immediately per spec.md §4.8.
			_ = conn.Close()
		}
	}
}

// ActiveConnections reports the current size of the bounded client
// table, for status/diagnostics reporting.
func (t *TCPServer) ActiveConnections() int {
	return int(atomic.LoadInt32(&t.activeConn))
}

func (t *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	sess := session.New(time.Now())
	reader := bufio.NewReaderSize(conn, 64*1024)

	peeked, err := reader.Peek(len(http.MethodGet) + len(" /health"))
	if err == nil && bytes.HasPrefix(peeked, []byte("GET /health")) {
		t.writeHealth(conn)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			if _, werr := conn.Write(tooLongResponse()); werr != nil {
				return
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			return
		}

		resp := t.Dispatch(ctx, sess, line)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (t *TCPServer) writeHealth(conn net.Conn) {
	resp := fmt.Sprintf(healthResponse, len(healthBody), healthBody)
	if _, err := conn.Write([]byte(resp)); err != nil {
		slog.Debug("tcp transport health write failed", "error", err)
	}
}
