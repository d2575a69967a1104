package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInvalidArchive     = errors.New("invalid archive")
	ErrTraversalRejected  = errors.New("traversal rejected")
	ErrFilesystemFailure  = errors.New("filesystem failure")
	ErrAlreadyExists      = errors.New("already exists")
	ErrBusy               = errors.New("destination busy")
	ErrChannelFailure     = errors.New("channel failure")
	ErrLoadFailure        = errors.New("load failure")
	ErrServerNotAvailable = errors.New("static server not available")
)

// Kind is the stable, transport-safe name of an error class.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindInvalidArchive    Kind = "invalid_archive"
	KindTraversalRejected Kind = "traversal_rejected"
	KindFilesystemFailure Kind = "filesystem_failure"
	KindAlreadyExists     Kind = "already_exists"
	KindBusy              Kind = "busy"
	KindChannelFailure    Kind = "channel_failure"
	KindLoadFailure       Kind = "load_failure"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	kind     Kind
	sentinel error
}{
	{KindTraversalRejected, ErrTraversalRejected},
	{KindInvalidArchive, ErrInvalidArchive},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindBusy, ErrBusy},
	{KindFilesystemFailure, ErrFilesystemFailure},
	{KindChannelFailure, ErrChannelFailure},
	{KindLoadFailure, ErrLoadFailure},
	{KindNotFound, ErrNotFound},
	{KindInvalidInput, ErrInvalidInput},
}

// KindOf reports the first matching kind in precedence order.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// FromKind rebuilds an error received over a process boundary so that
// errors.Is keeps working on the caller side.
func FromKind(kind Kind, message string) error {
	for _, k := range kinds {
		if k.kind == kind {
			message = strings.TrimPrefix(message, k.sentinel.Error()+": ")
			if message == "" || message == k.sentinel.Error() {
				return k.sentinel
			}
			return fmt.Errorf("%w: %s", k.sentinel, message)
		}
	}
	if message == "" {
		message = "unknown failure"
	}
	return errors.New(message)
}
