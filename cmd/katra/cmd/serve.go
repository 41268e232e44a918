package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/katra-project/katra/internal/config"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/engine"
	"github.com/katra-project/katra/internal/scheduler"
	"github.com/katra-project/katra/internal/session"
	"github.com/katra-project/katra/internal/transport"
)

var serveTransport string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the katra memory service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "stdio", "transport to serve: stdio, unix, or tcp")
}

var serveSignalNotify = signal.Notify
var serveSignalStop = signal.Stop

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("katra serve")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "config error: %v\n", err)
		return newExitError(exitConfigError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "init error: %v\n", err)
		return newExitError(exitFatalInit, err)
	}
	defer eng.Close()

	d := dispatcher.New()
	eng.RegisterAll(d)

	var lastActivityNanos atomic.Int64
	lastActivityNanos.Store(time.Now().UnixNano())
	dispatch := func(ctx context.Context, sess *session.Session, line []byte) []byte {
		lastActivityNanos.Store(time.Now().UnixNano())
		return d.Dispatch(ctx, sess, line)
	}

	sched := scheduler.New(scheduler.DefaultConfig(cfg.Root), func() bool {
		return time.Since(time.Unix(0, lastActivityNanos.Load())) < 2*cfg.Consolidation.TickInterval()
	})
	registerConsolidationJob(sched, eng, cfg)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "scheduler stopped: %v\n", err)
		}
	}()

	errCh := make(chan error, 1)
	switch strings.ToLower(serveTransport) {
	case "stdio", "":
		go func() {
			errCh <- transport.ServeStdio(ctx, os.Stdin, os.Stdout, dispatch)
		}()
	case "unix":
		srv := transport.NewUnixServer(cfg.Root, dispatch)
		fmt.Printf("listening on unix socket %s\n", srv.SocketPath)
		go func() {
			errCh <- srv.Serve(ctx)
		}()
	case "tcp":
		addr := fmt.Sprintf("%s:%d", cfg.TCP.Bind, cfg.TCP.Port)
		srv := transport.NewTCPServer(addr, dispatch)
		fmt.Printf("listening on tcp %s\n", addr)
		go func() {
			err := srv.Serve(ctx)
			if err != nil && isAddrInUse(err) {
				err = newExitError(exitPortInUse, err)
			}
			errCh <- err
		}()
	default:
		err := fmt.Errorf("unknown transport %q", serveTransport)
		return newExitError(exitConfigError, err)
	}

	sigChan := make(chan os.Signal, 1)
	serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer serveSignalStop(sigChan)

	select {
	case <-sigChan:
		fmt.Println("shutting down...")
		cancel()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}
}

func registerConsolidationJob(sched *scheduler.Scheduler, eng *engine.Engine, cfg *config.Config) {
	cronExpr := fmt.Sprintf("0 */%d * * *", maxInt(cfg.Consolidation.IntervalHours, 1))
	expr, err := scheduler.ParseCron(cronExpr)
	if err != nil {
		return
	}
	sched.Register(&scheduler.Job{
		Name:                 "consolidation",
		Cron:                 expr,
		Category:             scheduler.CategoryConsolidation,
		RequiresActiveSession: true,
		Func: func(ctx context.Context, now time.Time) error {
			for _, ownerID := range eng.Sessions.OwnerIDs() {
				if _, err := eng.Consolidation.Run(ctx, ownerID, now, false); err != nil {
					return fmt.Errorf("consolidation sweep for %s: %w", ownerID, err)
				}
			}
			return nil
		},
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func isAddrInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "address already in use")
}
