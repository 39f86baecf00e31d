package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/camera"
	httphandler "github.com/ericfisherdev/qrsignin/internal/adapter/driving/http"
	"github.com/ericfisherdev/qrsignin/internal/application"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

func cmdSignIn(ctx context.Context, a *app, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("signin: -email is required: %w", errUsage)
	}
	// Without a key the credential could never be stored.
	if a.cfg.SecretKey == nil {
		return fmt.Errorf("signin: %w", driven.ErrEncryptionKeyNotSet)
	}

	password, err := readPassword(os.Getenv("QRSIGNIN_PASSWORD"), stdin)
	if err != nil {
		return err
	}

	if err := a.session.SignIn(ctx, *email, password); err != nil {
		var valErr *model.ValidationError
		if errors.As(err, &valErr) {
			fmt.Fprintln(stdout, valErr.Error())
			return errors.New("sign-in rejected")
		}
		return err
	}

	fmt.Fprintln(stdout, "signed in")
	return nil
}

func cmdSignOut(ctx context.Context, a *app, stdout io.Writer) error {
	if err := a.session.SignOut(ctx); err != nil {
		fmt.Fprintf(stdout, "signed out (warning: %v)\n", err)
		return nil
	}
	fmt.Fprintln(stdout, "signed out")
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	verify := fs.Bool("verify", false, "check the credential with the auth service")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := a.permission.Request(ctx); err != nil {
		slog.Warn("camera permission unavailable", "error", err)
	}

	fmt.Fprint(stdout, formatStatus(a.status.Status()))

	if !*verify {
		return nil
	}

	acct, err := a.session.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Fprintf(stdout, "account:    %s <%s> (id %d)\n", acct.Name, acct.Email, acct.ID)
	return nil
}

// cmdScan consumes stdin until EOF, waits for the last dispatch to settle and
// exits.
func cmdScan(ctx context.Context, a *app, stdin io.Reader, stdout io.Writer) error {
	if err := requireScanning(ctx, a); err != nil {
		return err
	}

	printer := newOutcomePrinter(stdout)
	if err := a.bus.Subscribe(application.TopicOutcome, printer.print); err != nil {
		return err
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		a.scanner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		defer stopLoop()
		if err := a.scanner.Consume(gctx, camera.NewLineSource(stdin)); err != nil {
			return ignoreCanceled(err)
		}
		return ignoreCanceled(a.scanner.WaitSettled(gctx))
	})

	return g.Wait()
}

func cmdServe(ctx context.Context, a *app, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	useStdin := fs.Bool("stdin", false, "also read scan payloads from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := a.permission.Request(ctx); err != nil {
		slog.Warn("camera permission unavailable", "error", err)
	}

	hub := httphandler.NewOutcomeHub(slog.Default())
	if err := hub.Subscribe(a.bus); err != nil {
		return err
	}

	handler := httphandler.NewHandler(a.session, a.permission, a.scanner, a.status, hub, slog.Default())
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.scanner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Graceful shutdown with 10s timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if *useStdin {
		printer := newOutcomePrinter(stdout)
		if err := a.bus.Subscribe(application.TopicOutcome, printer.print); err != nil {
			return err
		}
		g.Go(func() error {
			return ignoreCanceled(a.scanner.Consume(gctx, camera.NewLineSource(stdin)))
		})
	}

	slog.Info("qrsignin started",
		"listen_addr", a.cfg.ListenAddr,
		"confirm_mode", a.cfg.ConfirmMode,
		"session", a.session.State(),
		"permission", a.permission.CurrentState(),
	)

	err := g.Wait()
	slog.Info("shutdown complete")
	return err
}

// requireScanning fails fast when a scan could never be accepted.
func requireScanning(ctx context.Context, a *app) error {
	if a.session.State() != model.SessionAuthenticated {
		return fmt.Errorf("scan: %w (run `qrsignin signin` first)", model.ErrNotAuthenticated)
	}

	state, err := a.permission.Request(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if state != model.PermissionGranted {
		return fmt.Errorf("scan: %w", model.ErrPermissionDenied)
	}
	return nil
}

// readPassword prefers the environment value and otherwise reads the first
// line of r.
func readPassword(env string, r io.Reader) (string, error) {
	if env != "" {
		return env, nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required (QRSIGNIN_PASSWORD or first stdin line)")
	}
	return password, nil
}

// outcomePrinter writes one line per settled dispatch. The bus may call it
// from the scan loop goroutine while the main goroutine also writes.
type outcomePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newOutcomePrinter(w io.Writer) *outcomePrinter {
	return &outcomePrinter{w: w}
}

func (p *outcomePrinter) print(out model.AuthOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, formatOutcome(out))
}

func formatOutcome(out model.AuthOutcome) string {
	switch out.Kind {
	case model.OutcomeSuccess:
		return "ok: " + out.Message
	case model.OutcomeRejected:
		return fmt.Sprintf("rejected (HTTP %d): %s", out.Status, out.Message)
	default:
		return "network failure: " + out.Message
	}
}

func formatStatus(st model.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session:    %s\n", st.Session)
	fmt.Fprintf(&b, "permission: %s\n", st.Permission)
	fmt.Fprintf(&b, "scanner:    %s\n", st.Scanner.State)
	fmt.Fprintf(&b, "mode:       %s\n", st.Mode)
	return b.String()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
