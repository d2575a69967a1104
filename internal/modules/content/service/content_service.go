package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	hclog "github.com/hashicorp/go-hclog"

	"dashext/internal/modules/content/domain"
	"dashext/internal/modules/content/dto"
	contentout "dashext/internal/modules/content/port/out"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

type Options struct {
	DestinationRoot string
	Delivery        domain.DeliveryMode
	// ServerAddr is where StartServer binds. BaseURL, when set, is used for
	// served references instead of a locally running server.
	ServerAddr string
	BaseURL    string
	Logger     hclog.Logger
}

type ContentService struct {
	root     string
	delivery domain.DeliveryMode
	addr     string
	baseURL  string
	server   contentout.StaticServer
	log      hclog.Logger
}

func NewContentService(opts Options, server contentout.StaticServer) (*ContentService, error) {
	if strings.TrimSpace(opts.DestinationRoot) == "" || !filepath.IsAbs(opts.DestinationRoot) {
		return nil, fmt.Errorf("%w: destination root must be an absolute path", apperrors.ErrInvalidInput)
	}
	delivery, err := domain.ParseDeliveryMode(string(opts.Delivery))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ContentService{
		root:     filepath.Clean(opts.DestinationRoot),
		delivery: delivery,
		addr:     opts.ServerAddr,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		server:   server,
		log:      logger.Named("content"),
	}, nil
}

func (s *ContentService) Resolve(_ context.Context, input dto.ResolveInput) (dto.ResolveOutput, error) {
	name, err := s.extensionName(input.TargetPath)
	if err != nil {
		return dto.ResolveOutput{}, err
	}
	entry := ""
	if input.Entry != "" {
		entry, err = safepath.CleanEntry(input.Entry)
		if err != nil {
			return dto.ResolveOutput{}, err
		}
	}
	var ref domain.Reference
	switch s.delivery {
	case domain.DeliveryDirect:
		ref, err = s.resolveDirect(name, entry)
	default:
		ref, err = s.resolveServed(name, entry)
	}
	if err != nil {
		return dto.ResolveOutput{}, err
	}
	s.log.Debug("resolved reference", "name", name, "kind", ref.Kind, "value", ref.Value)
	return dto.ResolveOutput{Reference: ref}, nil
}

// extensionName requires target to be an immediate child of the root.
func (s *ContentService) extensionName(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("%w: target path is required", apperrors.ErrInvalidInput)
	}
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("%w: target path %s is not absolute", apperrors.ErrTraversalRejected, target)
	}
	clean := filepath.Clean(target)
	if !safepath.Within(s.root, clean) || filepath.Dir(clean) != s.root {
		return "", fmt.Errorf("%w: %s is not an extension directory under %s", apperrors.ErrTraversalRejected, target, s.root)
	}
	name := filepath.Base(clean)
	if err := safepath.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *ContentService) resolveDirect(name, entry string) (domain.Reference, error) {
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("%w: resolve destination root: %v", apperrors.ErrFilesystemFailure, err)
	}
	dir, err := evalWithin(root, filepath.Join(root, name))
	if err != nil {
		return domain.Reference{}, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("%w: stat %s: %v", apperrors.ErrFilesystemFailure, dir, err)
	}
	if !info.IsDir() {
		return domain.Reference{}, fmt.Errorf("%w: %s is not a directory", apperrors.ErrNotFound, dir)
	}
	if entry == "" {
		return domain.Reference{Kind: domain.KindLocalPath, Value: dir}, nil
	}
	file, err := evalWithin(dir, filepath.Join(dir, entry))
	if err != nil {
		return domain.Reference{}, err
	}
	info, err = os.Stat(file)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("%w: stat %s: %v", apperrors.ErrFilesystemFailure, file, err)
	}
	if !info.Mode().IsRegular() {
		return domain.Reference{}, fmt.Errorf("%w: %s is not a regular file", apperrors.ErrNotFound, entry)
	}
	return domain.Reference{Kind: domain.KindLocalPath, Value: file}, nil
}

func (s *ContentService) resolveServed(name, entry string) (domain.Reference, error) {
	base := s.servedBase()
	if base == "" {
		return domain.Reference{}, fmt.Errorf("%w: no served base url", apperrors.ErrServerNotAvailable)
	}
	segments := []string{url.PathEscape(name)}
	if entry != "" {
		for _, seg := range strings.Split(filepath.ToSlash(entry), "/") {
			segments = append(segments, url.PathEscape(seg))
		}
	}
	value := base + "/" + strings.Join(segments, "/")
	if entry == "" {
		value += "/"
	}
	return domain.Reference{Kind: domain.KindServedURL, Value: value}, nil
}

func (s *ContentService) servedBase() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	if s.server != nil {
		if addr := s.server.Addr(); addr != "" {
			return "http://" + addr
		}
	}
	return ""
}

func (s *ContentService) StartServer(ctx context.Context) (dto.ServerStatus, error) {
	if s.server == nil {
		return dto.ServerStatus{}, fmt.Errorf("%w: no static server configured", apperrors.ErrServerNotAvailable)
	}
	root, err := safepath.Canonical(s.root)
	if err != nil {
		return dto.ServerStatus{}, err
	}
	addr, err := s.server.Start(ctx, s.addr, root)
	if err != nil {
		return dto.ServerStatus{}, err
	}
	s.log.Info("static server listening", "addr", addr, "root", root)
	return s.ServerStatus(ctx), nil
}

func (s *ContentService) StopServer(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Stop(ctx); err != nil {
		return err
	}
	s.log.Info("static server stopped")
	return nil
}

func (s *ContentService) ServerStatus(context.Context) dto.ServerStatus {
	if s.server == nil || s.server.Addr() == "" {
		return dto.ServerStatus{}
	}
	addr := s.server.Addr()
	return dto.ServerStatus{Running: true, Addr: addr, BaseURL: "http://" + addr}
}

func evalWithin(base, path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: resolve %s: %v", apperrors.ErrFilesystemFailure, path, err)
	}
	if !safepath.Within(base, resolved) {
		return "", fmt.Errorf("%w: %s resolves outside %s", apperrors.ErrTraversalRejected, path, base)
	}
	return resolved, nil
}
