package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	hclog "github.com/hashicorp/go-hclog"

	bridgeinadapter "dashext/internal/modules/bridge/adapter/in"
	bridgeoutadapter "dashext/internal/modules/bridge/adapter/out"
	bridgeout "dashext/internal/modules/bridge/port/out"
	bridgeservice "dashext/internal/modules/bridge/service"
	bridgeusecase "dashext/internal/modules/bridge/usecase"
	contentinadapter "dashext/internal/modules/content/adapter/in"
	contentdomain "dashext/internal/modules/content/domain"
	contentservice "dashext/internal/modules/content/service"
	contentusecase "dashext/internal/modules/content/usecase"
	loaderinadapter "dashext/internal/modules/loader/adapter/in"
	loaderoutadapter "dashext/internal/modules/loader/adapter/out"
	loaderout "dashext/internal/modules/loader/port/out"
	loaderservice "dashext/internal/modules/loader/service"
	loaderusecase "dashext/internal/modules/loader/usecase"
	uiapp "dashext/internal/ui/app"
)

// Variables the coordinator sets for the UI process. Nothing else from the
// host environment reaches it.
const (
	EnvUISocket   = "DASHEXT_UI_SOCKET"
	EnvUIBaseURL  = "DASHEXT_UI_BASE_URL"
	EnvUIRoot     = "DASHEXT_UI_DESTINATION_ROOT"
	EnvUIDelivery = "DASHEXT_UI_DELIVERY"
	EnvUILogFile  = "DASHEXT_UI_LOG_FILE"
	EnvUILogLevel = "DASHEXT_UI_LOG_LEVEL"
)

// UIEnv is everything the restricted UI knows about the host.
type UIEnv struct {
	SocketPath      string
	BaseURL         string
	DestinationRoot string
	Delivery        string
	LogFile         string
	LogLevel        string
}

func UIEnvFromLookup(lookup func(string) (string, bool)) UIEnv {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	return UIEnv{
		SocketPath:      get(EnvUISocket),
		BaseURL:         get(EnvUIBaseURL),
		DestinationRoot: get(EnvUIRoot),
		Delivery:        get(EnvUIDelivery),
		LogFile:         get(EnvUILogFile),
		LogLevel:        get(EnvUILogLevel),
	}
}

func (e UIEnv) Validate() error {
	if e.SocketPath == "" || !filepath.IsAbs(e.SocketPath) {
		return fmt.Errorf("ui: command channel socket must be an absolute path, got %q", e.SocketPath)
	}
	if e.DestinationRoot == "" || !filepath.IsAbs(e.DestinationRoot) {
		return fmt.Errorf("ui: destination root must be an absolute path, got %q", e.DestinationRoot)
	}
	if _, err := contentdomain.ParseDeliveryMode(e.Delivery); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

// Pairs renders the environment entries for the UI child process.
func (e UIEnv) Pairs() []string {
	out := []string{
		EnvUISocket + "=" + e.SocketPath,
		EnvUIRoot + "=" + e.DestinationRoot,
		EnvUIDelivery + "=" + e.Delivery,
	}
	if e.BaseURL != "" {
		out = append(out, EnvUIBaseURL+"="+e.BaseURL)
	}
	if e.LogFile != "" {
		out = append(out, EnvUILogFile+"="+e.LogFile)
	}
	if e.LogLevel != "" {
		out = append(out, EnvUILogLevel+"="+e.LogLevel)
	}
	return out
}

// UI is the restricted side. It reaches the host only through Bridge.
type UI struct {
	Bridge  bridgeinadapter.TUIHandler
	Content contentinadapter.CLIHandler
	Loader  loaderinadapter.TUIHandler

	root string
}

func NewUI(env UIEnv, logger hclog.Logger) (*UI, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return assembleUI(env, bridgeoutadapter.NewJSONRPCTransport(env.SocketPath), loaderoutadapter.NewPluginMounter(logger), logger)
}

func assembleUI(env UIEnv, transport bridgeout.Transport, mounter loaderout.Mounter, logger hclog.Logger) (*UI, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	contentSvc, err := contentservice.NewContentService(contentservice.Options{
		DestinationRoot: env.DestinationRoot,
		Delivery:        contentdomain.DeliveryMode(env.Delivery),
		BaseURL:         env.BaseURL,
		Logger:          logger,
	}, nil)
	if err != nil {
		return nil, err
	}
	fetcher := loaderoutadapter.NewRoutingFetcher(
		loaderoutadapter.NewLocalFetcher(),
		loaderoutadapter.NewHTTPFetcher(loaderoutadapter.HTTPOptions{}),
	)
	loaderSvc := loaderservice.NewLoaderService(fetcher, mounter, logger)
	return &UI{
		Bridge:  bridgeinadapter.NewTUIHandler(bridgeusecase.NewInteractor(bridgeservice.NewClientService(transport, logger))),
		Content: contentinadapter.NewCLIHandler(contentusecase.NewInteractor(contentSvc)),
		Loader:  loaderinadapter.NewTUIHandler(loaderusecase.NewInteractor(loaderSvc)),
		root:    env.DestinationRoot,
	}, nil
}

// RunTUI blocks until the user quits. The mounted component, if any, is
// released on every exit path.
func RunTUI(ctx context.Context, ui *UI) error {
	defer ui.Loader.Release(context.Background())
	model := uiapp.NewModel(ui.root, ui.Bridge, ui.Content, ui.Loader)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
