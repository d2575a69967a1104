package bootstrap

import (
	"context"
	"fmt"
	"os"

	hclog "github.com/hashicorp/go-hclog"

	bridgeoutadapter "dashext/internal/modules/bridge/adapter/out"
	bridgeout "dashext/internal/modules/bridge/port/out"
	bridgeservice "dashext/internal/modules/bridge/service"
	contentinadapter "dashext/internal/modules/content/adapter/in"
	contentoutadapter "dashext/internal/modules/content/adapter/out"
	contentdomain "dashext/internal/modules/content/domain"
	contentservice "dashext/internal/modules/content/service"
	contentusecase "dashext/internal/modules/content/usecase"
	extensioninadapter "dashext/internal/modules/extension/adapter/in"
	extensionoutadapter "dashext/internal/modules/extension/adapter/out"
	extensiondomain "dashext/internal/modules/extension/domain"
	extensionout "dashext/internal/modules/extension/port/out"
	extensionservice "dashext/internal/modules/extension/service"
	extensionusecase "dashext/internal/modules/extension/usecase"
	"dashext/internal/platform/clock"
	"dashext/internal/platform/config"
	"dashext/internal/platform/id"
)

// Host is the privileged side: it owns extraction, the registry, the static
// server and the command channel listener.
type Host struct {
	Extensions extensioninadapter.CLIHandler
	Content    contentinadapter.CLIHandler

	root       string
	dispatcher bridgeout.Handler
	listener   bridgeout.Server
	registry   *extensionoutadapter.SQLiteRegistry
	log        hclog.Logger
}

// NewHost wires the host services from cfg. A nil picker selects the
// terminal picker.
func NewHost(cfg config.Config, logger hclog.Logger, picker extensionout.Picker) (*Host, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(cfg.DestinationRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create destination root: %w", err)
	}
	timeout, err := cfg.ExtractionTimeout()
	if err != nil {
		return nil, err
	}

	extractor, err := extensionoutadapter.NewTarExtractor(extensionoutadapter.TarOptions{
		Limits: extensiondomain.Limits{
			MaxEntries:   cfg.Extraction.MaxEntries,
			MaxBytes:     cfg.Extraction.MaxBytes,
			MaxFileBytes: cfg.Extraction.MaxFileBytes,
		},
		Existing: extensiondomain.ExistingPolicy(cfg.Extraction.Existing),
		Symlinks: extensiondomain.SymlinkPolicy(cfg.Extraction.Symlinks),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new extractor: %w", err)
	}
	registry, err := extensionoutadapter.NewSQLiteRegistry(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("new extension registry: %w", err)
	}
	if picker == nil {
		home, _ := os.UserHomeDir()
		picker = extensionoutadapter.NewTerminalPicker(home)
	}

	extensionSvc, err := extensionservice.NewExtensionService(extensionservice.Options{
		DestinationRoot: cfg.DestinationRoot,
		Workers:         cfg.Extraction.Workers,
		Timeout:         timeout,
		Logger:          logger,
	}, clock.SystemClock{}, id.UUIDv7{}, picker, extractor, registry)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	extensionUC := extensionusecase.NewInteractor(extensionSvc)

	contentSvc, err := contentservice.NewContentService(contentservice.Options{
		DestinationRoot: extensionSvc.Root(),
		Delivery:        contentdomain.DeliveryMode(cfg.Delivery),
		ServerAddr:      cfg.Server.Addr,
		Logger:          logger,
	}, contentoutadapter.NewHTTPStaticServer(logger))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	return &Host{
		Extensions: extensioninadapter.NewCLIHandler(extensionUC),
		Content:    contentinadapter.NewCLIHandler(contentusecase.NewInteractor(contentSvc)),
		root:       extensionSvc.Root(),
		dispatcher: bridgeservice.NewDispatcher(extensionUC, logger),
		listener:   bridgeoutadapter.NewJSONRPCServer(),
		registry:   registry,
		log:        logger.Named("host"),
	}, nil
}

// Root is the canonical destination root handed to the UI.
func (h *Host) Root() string { return h.root }

// Handler answers command channel requests in-process.
func (h *Host) Handler() bridgeout.Handler { return h.dispatcher }

// ServeBridge accepts command channel connections until ctx is done.
func (h *Host) ServeBridge(ctx context.Context, socketPath string) error {
	h.log.Info("command channel listening", "socket", socketPath)
	return h.listener.Serve(ctx, socketPath, h.dispatcher)
}

func (h *Host) Close() error {
	return h.registry.Close()
}
