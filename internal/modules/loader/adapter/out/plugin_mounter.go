package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	componentrpc "dashext/internal/modules/loader/adapter/out/rpc"
	"dashext/internal/modules/loader/domain"
	loaderout "dashext/internal/modules/loader/port/out"
	apperrors "dashext/internal/platform/errors"
)

const (
	defaultStartTimeout = 5 * time.Second
	defaultCallTimeout  = 5 * time.Second
)

// PluginMounter launches a component entry as a go-plugin subprocess. The
// entry must hash to the module checksum before it is executed.
type PluginMounter struct {
	log          hclog.Logger
	startTimeout time.Duration
	callTimeout  time.Duration
}

func NewPluginMounter(logger hclog.Logger) loaderout.Mounter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PluginMounter{log: logger.Named("component"), startTimeout: defaultStartTimeout, callTimeout: defaultCallTimeout}
}

func (m *PluginMounter) Mount(ctx context.Context, module domain.Module) (loaderout.Handle, error) {
	sum, err := hex.DecodeString(module.SHA256)
	if err != nil || len(sum) != sha256.Size {
		return nil, fmt.Errorf("%w: invalid checksum for %s", apperrors.ErrLoadFailure, module.Name)
	}
	cmd := exec.Command(module.EntryPath)
	cmd.Dir = module.Dir
	if cmd.Dir == "" {
		cmd.Dir = os.TempDir()
	}
	cmd.Env = []string{"HOME=" + cmd.Dir, "PATH=/usr/bin:/bin"}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  componentrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          componentrpc.PluginMap(nil),
		Cmd:              cmd,
		SkipHostEnv:      true,
		SecureConfig:     &plugin.SecureConfig{Checksum: sum, Hash: sha256.New()},
		Managed:          false,
		StartTimeout:     m.startTimeout,
		Logger:           m.log.With("module", module.Name),
	})
	fail := func(err error) (loaderout.Handle, error) {
		client.Kill()
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrLoadFailure, module.Name, err)
	}

	rpcClient, err := client.Client()
	if err != nil {
		return fail(fmt.Errorf("start component: %w", err))
	}
	raw, err := rpcClient.Dispense(componentrpc.PluginMapKey)
	if err != nil {
		return fail(fmt.Errorf("dispense component: %w", err))
	}
	component, ok := raw.(componentrpc.ComponentClient)
	if !ok {
		return fail(fmt.Errorf("component rpc client type mismatch"))
	}

	callCtx, cancel := m.callContext(ctx)
	defer cancel()
	desc, err := component.Describe(callCtx)
	if err != nil {
		return fail(fmt.Errorf("describe component: %w", err))
	}
	if desc.Name == "" {
		desc.Name = module.Name
	}
	if desc.Title == "" {
		desc.Title = module.Title
	}
	return &pluginHandle{
		client:      client,
		component:   component,
		callTimeout: m.callTimeout,
		cleanup:     module.Close,
		descriptor:  domain.Descriptor{Name: desc.Name, Version: desc.Version, Title: desc.Title},
	}, nil
}

func (m *PluginMounter) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, m.callTimeout)
}

type pluginHandle struct {
	client      *plugin.Client
	component   componentrpc.ComponentClient
	callTimeout time.Duration
	cleanup     func()
	descriptor  domain.Descriptor
	once        sync.Once
}

func (h *pluginHandle) Descriptor() domain.Descriptor {
	return h.descriptor
}

func (h *pluginHandle) Render(ctx context.Context, width, height int) (string, error) {
	if h.client.Exited() {
		return "", fmt.Errorf("%w: component %s exited", apperrors.ErrLoadFailure, h.descriptor.Name)
	}
	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	frame, err := h.component.Render(callCtx, &componentrpc.RenderRequest{Width: int32(width), Height: int32(height)})
	if err != nil {
		return "", fmt.Errorf("render component: %w", err)
	}
	return frame.Content, nil
}

func (h *pluginHandle) Release() {
	h.once.Do(func() {
		h.client.Kill()
		h.cleanup()
	})
}
