package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"dashext/internal/bootstrap"
	"dashext/internal/platform/config"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		if kind := apperrors.KindOf(err); kind != apperrors.KindInternal {
			_, _ = fmt.Fprintf(os.Stderr, "kind: %s\n", kind)
		}
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile      string
	destinationRoot string
	delivery        string
	logLevel        string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "dashext",
		Short:         "Dashboard extension ingestion and loading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default "+config.DefaultFile()+")")
	root.PersistentFlags().StringVar(&flags.destinationRoot, "destination-root", "", "directory extensions are extracted under")
	root.PersistentFlags().StringVar(&flags.delivery, "delivery", "", "how extracted payloads reach the loader: direct|served")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "trace|debug|info|warn|error|off")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newHostCmd(flags))
	root.AddCommand(newUICmd(flags))
	root.AddCommand(newExtensionCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	return root
}

func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	overrides := map[string]any{}
	if cmd.Flags().Changed("destination-root") {
		abs, err := filepath.Abs(flags.destinationRoot)
		if err != nil {
			return config.Config{}, err
		}
		overrides["destination_root"] = abs
	}
	if cmd.Flags().Changed("delivery") {
		overrides["delivery"] = flags.delivery
	}
	if cmd.Flags().Changed("log-level") {
		overrides["log.level"] = flags.logLevel
	}
	return config.Load(config.LoadOptions{ConfigFile: flags.configFile, Overrides: overrides})
}

func newLogger(name, level, file string, out io.Writer) (hclog.Logger, io.Closer, error) {
	return logging.New(logging.Options{Name: name, Level: level, File: file, Output: out})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadHost builds the host services for operator commands. The returned
// cleanup closes the host and its log file.
func loadHost(cmd *cobra.Command, flags *rootFlags) (*bootstrap.Host, config.Config, func(), error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	logger, closer, err := newLogger("dashext", cfg.Log.Level, cfg.Log.File, cmd.ErrOrStderr())
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	host, err := bootstrap.NewHost(cfg, logger, nil)
	if err != nil {
		_ = closer.Close()
		return nil, config.Config{}, nil, err
	}
	return host, cfg, func() {
		_ = host.Close()
		_ = closer.Close()
	}, nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the host and the extension UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			// The UI owns the terminal, so the host logs to a file.
			logger, closer, err := newLogger("dashext", cfg.Log.Level, cfg.LogFile(), nil)
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, stop := signalContext()
			defer stop()
			return bootstrap.Run(ctx, cfg, logger, bootstrap.RunOptions{})
		},
	}
}

func newHostCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Run the host in the foreground for a separately started UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, cfg, cleanup, err := loadHost(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, stop := signalContext()
			defer stop()

			env := bootstrap.UIEnv{SocketPath: cfg.SocketPath(), DestinationRoot: host.Root(), Delivery: cfg.Delivery}
			if cfg.Delivery == config.DeliveryServed {
				status, err := host.Content.StartServer(ctx)
				if err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = host.Content.StopServer(stopCtx)
				}()
				env.BaseURL = status.BaseURL
			}
			for _, kv := range env.Pairs() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), kv)
			}
			return host.ServeBridge(ctx, env.SocketPath)
		},
	}
}

func newUICmd(flags *rootFlags) *cobra.Command {
	var socketPath, baseURL string
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Run the restricted extension UI against a running host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := bootstrap.UIEnvFromLookup(os.LookupEnv)
			if env.SocketPath == "" {
				cfg, err := loadConfig(cmd, flags)
				if err != nil {
					return err
				}
				env = bootstrap.UIEnv{
					SocketPath:      cfg.SocketPath(),
					DestinationRoot: cfg.DestinationRoot,
					Delivery:        cfg.Delivery,
					LogFile:         filepath.Join(cfg.StateDir, "logs", "dashext-ui.log"),
					LogLevel:        cfg.Log.Level,
				}
				if cfg.Delivery == config.DeliveryServed {
					env.BaseURL = "http://" + cfg.Server.Addr
				}
			}
			if cmd.Flags().Changed("socket") {
				env.SocketPath = socketPath
			}
			if cmd.Flags().Changed("base-url") {
				env.BaseURL = baseURL
			}
			if env.LogFile == "" {
				env.LogFile = filepath.Join(os.TempDir(), "dashext-ui.log")
			}
			logger, closer, err := newLogger("dashext-ui", env.LogLevel, env.LogFile, nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			ui, err := bootstrap.NewUI(env, logger)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return bootstrap.RunTUI(ctx, ui)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "command channel socket")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "static server base URL")
	return cmd
}

func newExtensionCmd(flags *rootFlags) *cobra.Command {
	extension := &cobra.Command{Use: "extension", Short: "Manage extracted extensions"}

	extension.AddCommand(&cobra.Command{
		Use:   "extract <archive>",
		Short: "Extract a .tar, .tar.gz or .tgz archive under the destination root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, _, cleanup, err := loadHost(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			archive, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			out, err := host.Extensions.Extract(cmd.Context(), archive, host.Root())
			if err != nil {
				return err
			}
			verb := "extracted"
			if out.Replaced {
				verb = "replaced"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (%d files, %d bytes)\n", verb, out.Name, out.TargetPath, out.Files, out.Bytes)
			return nil
		},
	})

	extension.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded extensions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, _, cleanup, err := loadHost(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			items, err := host.Extensions.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no extensions")
				return nil
			}
			for _, item := range items {
				state := "present"
				if !item.Present {
					state = "missing"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d files\t%s\t%s\n", item.Name, item.TargetPath, item.Files, item.ExtractedAt.Format(time.RFC3339), state)
			}
			return nil
		},
	})

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an extension directory and its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !yes {
				confirmed := false
				err := huh.NewForm(
					huh.NewGroup(
						huh.NewConfirm().
							Title(fmt.Sprintf("Remove extension %q?", name)).
							Description("The extracted directory is deleted.").
							Affirmative("Remove").
							Negative("Keep").
							Value(&confirmed),
					),
				).Run()
				if err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
				if !confirmed {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "kept", name)
					return nil
				}
			}
			host, _, cleanup, err := loadHost(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := host.Extensions.Remove(cmd.Context(), name); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "removed", name)
			return nil
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	extension.AddCommand(remove)

	extension.AddCommand(&cobra.Command{
		Use:   "resolve <name> [entry]",
		Short: "Print the loadable reference for an extracted extension",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, _, cleanup, err := loadHost(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			entry := ""
			if len(args) == 2 {
				entry = args[1]
			}
			out, err := host.Content.Resolve(cmd.Context(), filepath.Join(host.Root(), args[0]), entry)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", out.Reference.Kind, out.Reference.Value)
			return nil
		},
	})
	return extension
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration file management"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configFile
			if path == "" {
				path = config.DefaultFile()
			}
			if path == "" {
				return fmt.Errorf("no config directory; pass --config")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", apperrors.ErrAlreadyExists, path)
			}
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			text, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	})
	return cfgCmd
}
