package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"dashext/internal/modules/loader/domain"
	"dashext/internal/modules/loader/dto"
	loaderout "dashext/internal/modules/loader/port/out"
	apperrors "dashext/internal/platform/errors"
)

type attempt struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// LoaderService holds at most one mounted component. Each Load supersedes
// the previous one: the earlier attempt is cancelled and awaited, and its
// handle released, before the new reference is fetched.
//
// Callers that issue requests from several goroutines reserve a ticket per
// request. A ticketed request that arrives after a newer one is dropped.
type LoaderService struct {
	fetcher loaderout.Fetcher
	mounter loaderout.Mounter
	log     hclog.Logger

	mu       sync.Mutex
	reserved uint64
	applied  uint64
	gen      uint64
	state    domain.State
	err      error
	handle   loaderout.Handle
	inflight *attempt
}

func NewLoaderService(fetcher loaderout.Fetcher, mounter loaderout.Mounter, logger hclog.Logger) *LoaderService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LoaderService{fetcher: fetcher, mounter: mounter, log: logger.Named("loader"), state: domain.StateIdle}
}

// Reserve returns the next request ticket.
func (s *LoaderService) Reserve() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved++
	return s.reserved
}

// admitLocked reports whether a request holding ticket may run. Ticket 0
// is unordered and always admitted.
func (s *LoaderService) admitLocked(ticket uint64) bool {
	if ticket == 0 {
		return true
	}
	if ticket <= s.applied {
		return false
	}
	s.applied = ticket
	return true
}

func (s *LoaderService) Load(ctx context.Context, ref domain.Reference) dto.Snapshot {
	return s.LoadTicket(ctx, 0, ref)
}

// LoadTicket is Load for a reserved ticket. A stale ticket returns a
// superseded snapshot without touching the mounted component.
func (s *LoaderService) LoadTicket(ctx context.Context, ticket uint64, ref domain.Reference) dto.Snapshot {
	s.mu.Lock()
	if !s.admitLocked(ticket) {
		gen := s.gen
		s.mu.Unlock()
		s.log.Debug("dropped out-of-order load", "ticket", ticket, "ref", ref.Value)
		return dto.Snapshot{Generation: gen, State: domain.StateLoading, Superseded: true}
	}
	s.mu.Unlock()

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cur := &attempt{cancel: cancel, done: make(chan struct{})}
	defer close(cur.done)

	s.mu.Lock()
	s.gen++
	cur.gen = s.gen
	prior := s.inflight
	s.inflight = cur
	s.state, s.err = domain.StateLoading, nil
	s.mu.Unlock()

	if prior != nil {
		prior.cancel()
		<-prior.done
	}

	s.mu.Lock()
	if s.gen != cur.gen {
		s.mu.Unlock()
		return dto.Snapshot{Generation: cur.gen, State: domain.StateLoading, Superseded: true}
	}
	old := s.handle
	s.handle = nil
	s.mu.Unlock()
	if old != nil {
		old.Release()
	}

	s.log.Debug("loading", "generation", cur.gen, "kind", ref.Kind, "ref", ref.Value)
	handle, err := s.mount(attemptCtx, ref)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == cur {
		s.inflight = nil
	}
	if s.gen != cur.gen {
		if handle != nil {
			handle.Release()
		}
		s.log.Debug("discarded superseded load", "generation", cur.gen)
		return dto.Snapshot{Generation: cur.gen, State: domain.StateLoading, Superseded: true}
	}
	if err == nil && attemptCtx.Err() != nil {
		handle.Release()
		handle = nil
		err = fmt.Errorf("%w: load cancelled", apperrors.ErrLoadFailure)
	}
	if err != nil {
		s.state, s.err = domain.StateFailed, err
		s.log.Warn("load failed", "generation", cur.gen, "error", err)
		return s.snapshotLocked()
	}
	s.state, s.handle = domain.StateLoaded, handle
	desc := handle.Descriptor()
	s.log.Info("component mounted", "generation", cur.gen, "name", desc.Name, "version", desc.Version)
	return s.snapshotLocked()
}

func (s *LoaderService) mount(ctx context.Context, ref domain.Reference) (handle loaderout.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			if handle != nil {
				handle.Release()
			}
			handle = nil
			err = fmt.Errorf("%w: panic while loading: %v", apperrors.ErrLoadFailure, r)
		}
	}()
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	module, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, asLoadFailure(err)
	}
	if err := module.Validate(); err != nil {
		module.Close()
		return nil, err
	}
	handle, err = s.mounter.Mount(ctx, module)
	if err != nil {
		module.Close()
		return nil, asLoadFailure(err)
	}
	if handle == nil {
		module.Close()
		return nil, fmt.Errorf("%w: mounter returned no component", apperrors.ErrLoadFailure)
	}
	return handle, nil
}

func (s *LoaderService) Snapshot() dto.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *LoaderService) snapshotLocked() dto.Snapshot {
	snap := dto.Snapshot{Generation: s.gen, State: s.state}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.handle != nil && s.state == domain.StateLoaded {
		desc := s.handle.Descriptor()
		snap.Descriptor = dto.Descriptor{Name: desc.Name, Version: desc.Version, Title: desc.Title}
	}
	return snap
}

func (s *LoaderService) Render(ctx context.Context, width, height int) (content string, err error) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return "", fmt.Errorf("%w: no component mounted", apperrors.ErrNotFound)
	}
	defer func() {
		if r := recover(); r != nil {
			content = ""
			err = fmt.Errorf("%w: component panicked while rendering: %v", apperrors.ErrLoadFailure, r)
		}
	}()
	content, err = handle.Render(ctx, width, height)
	if err != nil {
		return "", asLoadFailure(err)
	}
	return content, nil
}

// Release unmounts the current component and returns to Idle. Any load in
// flight is cancelled and its result discarded, and every ticket reserved
// so far becomes stale.
func (s *LoaderService) Release() {
	s.mu.Lock()
	s.applied = s.reserved
	s.mu.Unlock()
	s.ReleaseTicket(0)
}

// ReleaseTicket is Release for a reserved ticket. It reports false, and
// leaves the loader alone, when a newer request already ran.
func (s *LoaderService) ReleaseTicket(ticket uint64) bool {
	s.mu.Lock()
	if !s.admitLocked(ticket) {
		s.mu.Unlock()
		return false
	}
	s.gen++
	prior := s.inflight
	s.inflight = nil
	handle := s.handle
	s.handle = nil
	s.state, s.err = domain.StateIdle, nil
	s.mu.Unlock()

	if prior != nil {
		prior.cancel()
		<-prior.done
	}
	if handle != nil {
		handle.Release()
	}
	return true
}

func asLoadFailure(err error) error {
	if errors.Is(err, apperrors.ErrLoadFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrLoadFailure, err)
}
