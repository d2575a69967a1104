package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"dashext/internal/platform/config"
)

const (
	socketReadyTimeout = 5 * time.Second
	childStopGrace     = 3 * time.Second
	serverStopTimeout  = 5 * time.Second
)

// inheritedEnv is the allowlist of host variables the UI child keeps.
var inheritedEnv = []string{"PATH", "HOME", "TERM", "COLORTERM", "NO_COLOR", "LANG", "LC_ALL", "LC_CTYPE", "TMPDIR"}

type RunOptions struct {
	// Executable and Args start the UI child; they default to this binary
	// with the "ui" subcommand.
	Executable string
	Args       []string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run starts the host, spawns the UI and tears everything down when the UI
// exits, ctx is cancelled or the host fails.
func Run(ctx context.Context, cfg config.Config, logger hclog.Logger, opts RunOptions) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	log := logger.Named("coordinator")

	host, err := NewHost(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env := UIEnv{
		SocketPath:      cfg.SocketPath(),
		DestinationRoot: host.Root(),
		Delivery:        cfg.Delivery,
		LogFile:         filepath.Join(cfg.StateDir, "logs", "dashext-ui.log"),
		LogLevel:        cfg.Log.Level,
	}
	if cfg.Delivery == config.DeliveryServed {
		status, err := host.Content.StartServer(ctx)
		if err != nil {
			return err
		}
		env.BaseURL = status.BaseURL
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), serverStopTimeout)
			defer stop()
			if stopErr := host.Content.StopServer(stopCtx); stopErr != nil {
				log.Warn("static server stop failed", "error", stopErr)
			}
		}()
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return host.ServeBridge(gctx, env.SocketPath)
	})
	if err := waitForSocket(gctx, env.SocketPath, socketReadyTimeout); err != nil {
		cancel()
		if serveErr := group.Wait(); serveErr != nil {
			return serveErr
		}
		return err
	}
	group.Go(func() error {
		defer cancel()
		return runChild(gctx, opts, env, log)
	})
	return group.Wait()
}

func runChild(ctx context.Context, opts RunOptions, env UIEnv, log hclog.Logger) error {
	exe := opts.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}
	args := opts.Args
	if args == nil {
		args = []string{"ui"}
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = childEnv(os.Environ(), env)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = orStd(opts)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = childStopGrace

	log.Info("starting ui", "exe", exe)
	err := cmd.Run()
	if ctx.Err() != nil {
		log.Info("ui stopped", "reason", context.Cause(ctx))
		return nil
	}
	if err != nil {
		return fmt.Errorf("ui exited: %w", err)
	}
	log.Info("ui exited")
	return nil
}

// childEnv keeps the allowlisted parent variables and appends the UI's own.
func childEnv(parent []string, env UIEnv) []string {
	out := []string{}
	for _, kv := range parent {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, allowed := range inheritedEnv {
			if name == allowed {
				out = append(out, kv)
				break
			}
		}
	}
	return append(out, env.Pairs()...)
}

func orStd(opts RunOptions) (io.Reader, io.Writer, io.Writer) {
	in, out, errOut := opts.Stdin, opts.Stdout, opts.Stderr
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return in, out, errOut
}

func waitForSocket(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("command channel not ready: %w", context.Cause(ctx))
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("command channel socket not ready: %s", path)
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 150*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
