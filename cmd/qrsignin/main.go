package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/qrsignin/internal/config"
)

const usage = `usage: qrsignin <command> [flags]

commands:
  signin -email E    sign in (password from QRSIGNIN_PASSWORD or first stdin line)
  signout            sign out and clear the stored credential
  status [-verify]   show session, permission and scanner state
  scan               read decoded QR payloads from stdin and confirm sign-ins
  serve [-stdin]     run the local API (optionally also reading scans from stdin)
`

// errUsage is returned for an unknown or missing command.
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	// 1. Load configuration (.env first, real environment wins).
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Debug("config loaded",
		"api_url", cfg.APIURL,
		"confirm_mode", cfg.ConfirmMode,
		"store", cfg.Store,
		"cooldown", cfg.Cooldown,
		"listen_addr", cfg.ListenAddr,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire adapters and services.
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. Resolve the session from the credential store (no network call).
	if err := a.session.Load(ctx); err != nil {
		fmt.Fprintf(stdout, "warning: %v\n", err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signin":
		return cmdSignIn(ctx, a, rest, stdin, stdout)
	case "signout":
		return cmdSignOut(ctx, a, stdout)
	case "status":
		return cmdStatus(ctx, a, rest, stdout)
	case "scan":
		return cmdScan(ctx, a, stdin, stdout)
	case "serve":
		return cmdServe(ctx, a, rest, stdin, stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
