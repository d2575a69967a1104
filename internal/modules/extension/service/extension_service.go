package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"dashext/internal/modules/extension/domain"
	"dashext/internal/modules/extension/dto"
	extensionout "dashext/internal/modules/extension/port/out"
	"dashext/internal/platform/clock"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/id"
	"dashext/internal/platform/safepath"
)

type Options struct {
	DestinationRoot string
	Workers         int
	Timeout         time.Duration
	Logger          hclog.Logger
}

type ExtensionService struct {
	root      string
	picker    extensionout.Picker
	extractor extensionout.Extractor
	registry  extensionout.Registry
	clock     clock.Clock
	ids       id.Generator
	workers   *semaphore.Weighted
	timeout   time.Duration
	log       hclog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewExtensionService(opts Options, clk clock.Clock, ids id.Generator, picker extensionout.Picker, extractor extensionout.Extractor, registry extensionout.Registry) (*ExtensionService, error) {
	root, err := safepath.Canonical(opts.DestinationRoot)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExtensionService{
		root:      root,
		picker:    picker,
		extractor: extractor,
		registry:  registry,
		clock:     clk,
		ids:       ids,
		workers:   semaphore.NewWeighted(int64(workers)),
		timeout:   opts.Timeout,
		log:       logger.Named("extension"),
		active:    map[string]struct{}{},
	}, nil
}

// Root is the canonical destination root every extraction lands under.
func (s *ExtensionService) Root() string {
	return s.root
}

func (s *ExtensionService) SelectArchive(ctx context.Context) (dto.SelectOutput, error) {
	if s.picker == nil {
		return dto.SelectOutput{}, fmt.Errorf("%w: no file picker configured", apperrors.ErrInvalidInput)
	}
	path, ok, err := s.picker.Pick(ctx)
	if err != nil {
		return dto.SelectOutput{}, err
	}
	if !ok {
		s.log.Debug("archive selection cancelled")
		return dto.SelectOutput{}, nil
	}
	if err := validateSource(path); err != nil {
		return dto.SelectOutput{}, err
	}
	return dto.SelectOutput{Path: path, Selected: true}, nil
}

func (s *ExtensionService) Extract(ctx context.Context, input dto.ExtractInput) (dto.ExtractOutput, error) {
	if err := validateSource(input.SourceArchive); err != nil {
		return dto.ExtractOutput{}, err
	}
	if err := s.checkRoot(input.DestinationRoot); err != nil {
		return dto.ExtractOutput{}, err
	}
	root, name, target, err := safepath.TargetPath(s.root, input.SourceArchive)
	if err != nil {
		return dto.ExtractOutput{}, err
	}
	plan := domain.Plan{Source: filepath.Clean(input.SourceArchive), Root: root, Name: name, Target: target}
	if err := plan.Validate(); err != nil {
		return dto.ExtractOutput{}, err
	}

	release, err := s.claim(target)
	if err != nil {
		return dto.ExtractOutput{}, err
	}
	defer release()

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return dto.ExtractOutput{}, fmt.Errorf("%w: waiting for extraction worker: %v", apperrors.ErrFilesystemFailure, err)
	}
	defer s.workers.Release(1)

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := s.clock.Now()
	stats, err := s.extractor.Extract(runCtx, plan)
	if err != nil {
		if runCtx.Err() != nil && !errors.Is(err, apperrors.ErrTraversalRejected) && !errors.Is(err, apperrors.ErrInvalidArchive) {
			err = fmt.Errorf("%w: extraction aborted: %v", apperrors.ErrFilesystemFailure, runCtx.Err())
		}
		s.log.Warn("extraction failed", "name", name, "source", plan.Source, "kind", apperrors.KindOf(err), "error", err)
		return dto.ExtractOutput{}, err
	}
	s.log.Info("extraction complete", "name", name, "target", target, "files", stats.Files, "bytes", stats.Bytes, "elapsed", s.clock.Now().Sub(started))

	record := domain.Installed{
		ID:            s.ids.New(),
		Name:          name,
		TargetPath:    target,
		SourceArchive: plan.Source,
		ArchiveSHA256: stats.ArchiveSHA256,
		Files:         stats.Files,
		Bytes:         stats.Bytes,
		ExtractedAt:   s.clock.Now(),
	}
	if s.registry != nil {
		if err := s.registry.Record(ctx, record); err != nil {
			s.log.Warn("registry record failed", "name", name, "error", err)
		}
	}
	return dto.ExtractOutput{Name: name, TargetPath: target, Files: stats.Files, Bytes: stats.Bytes, Replaced: stats.Replaced}, nil
}

func (s *ExtensionService) List(ctx context.Context) ([]dto.InstalledInfo, error) {
	if s.registry == nil {
		return []dto.InstalledInfo{}, nil
	}
	items, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.InstalledInfo, 0, len(items))
	for _, item := range items {
		info, statErr := os.Stat(item.TargetPath)
		out = append(out, dto.InstalledInfo{
			ID:            item.ID,
			Name:          item.Name,
			TargetPath:    item.TargetPath,
			SourceArchive: item.SourceArchive,
			ArchiveSHA256: item.ArchiveSHA256,
			Files:         item.Files,
			Bytes:         item.Bytes,
			ExtractedAt:   item.ExtractedAt,
			Present:       statErr == nil && info.IsDir(),
		})
	}
	return out, nil
}

func (s *ExtensionService) Remove(ctx context.Context, name string) error {
	if err := safepath.ValidateName(name); err != nil {
		return err
	}
	target := filepath.Join(s.root, name)
	if !safepath.Within(s.root, target) {
		return fmt.Errorf("%w: %s", apperrors.ErrTraversalRejected, name)
	}
	release, err := s.claim(target)
	if err != nil {
		return err
	}
	defer release()

	existed := false
	info, err := os.Lstat(target)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: %s is not an extension directory", apperrors.ErrInvalidInput, target)
	case err == nil:
		existed = true
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("%w: remove %s: %v", apperrors.ErrFilesystemFailure, target, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("%w: stat %s: %v", apperrors.ErrFilesystemFailure, target, err)
	}
	if s.registry != nil {
		if err := s.registry.Delete(ctx, name); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if !existed {
				return fmt.Errorf("%w: extension %q", apperrors.ErrNotFound, name)
			}
		}
	} else if !existed {
		return fmt.Errorf("%w: extension %q", apperrors.ErrNotFound, name)
	}
	s.log.Info("extension removed", "name", name)
	return nil
}

// checkRoot re-derives the caller's destination root and requires it to be
// the configured one.
func (s *ExtensionService) checkRoot(destinationRoot string) error {
	if destinationRoot == "" {
		return fmt.Errorf("%w: destination root is required", apperrors.ErrInvalidInput)
	}
	if !filepath.IsAbs(destinationRoot) {
		return fmt.Errorf("%w: destination root must be absolute", apperrors.ErrTraversalRejected)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(destinationRoot))
	if err != nil {
		return fmt.Errorf("%w: destination root %s is not the configured root", apperrors.ErrTraversalRejected, destinationRoot)
	}
	if resolved != s.root {
		return fmt.Errorf("%w: destination root %s is not the configured root", apperrors.ErrTraversalRejected, destinationRoot)
	}
	return nil
}

// claim rejects a second concurrent operation against the same target.
func (s *ExtensionService) claim(target string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[target]; busy {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrBusy, filepath.Base(target))
	}
	s.active[target] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.active, target)
		s.mu.Unlock()
	}, nil
}

func validateSource(path string) error {
	if path == "" {
		return fmt.Errorf("%w: source archive is required", apperrors.ErrInvalidInput)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: source archive must be an absolute path", apperrors.ErrInvalidInput)
	}
	if !safepath.IsAcceptedArchive(path) {
		return fmt.Errorf("%w: %s is not a .tar, .tar.gz or .tgz file", apperrors.ErrInvalidArchive, filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: source archive %s", apperrors.ErrNotFound, path)
		}
		return fmt.Errorf("%w: stat source archive: %v", apperrors.ErrInvalidArchive, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", apperrors.ErrInvalidArchive, path)
	}
	return nil
}
