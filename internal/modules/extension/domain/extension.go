package domain

import (
	"fmt"
	"path/filepath"
	"time"

	apperrors "dashext/internal/platform/errors"
)

type EntryKind string

const (
	EntryFile      EntryKind = "file"
	EntryDirectory EntryKind = "directory"
	EntrySymlink   EntryKind = "symlink"
	EntryHardlink  EntryKind = "hardlink"
	EntryOther     EntryKind = "other"
)

// ArchiveEntry is one archive member as read from the stream. It is
// validated and then materialized or rejected, never stored.
type ArchiveEntry struct {
	Path       string
	Kind       EntryKind
	Size       int64
	Executable bool
	LinkTarget string
}

type ExistingPolicy string

const (
	ExistingReject  ExistingPolicy = "reject"
	ExistingReplace ExistingPolicy = "replace"
)

type SymlinkPolicy string

const (
	SymlinksReject  SymlinkPolicy = "reject"
	SymlinksContain SymlinkPolicy = "contain"
)

type Limits struct {
	MaxEntries   int
	MaxBytes     int64
	MaxFileBytes int64
}

func (l Limits) Validate() error {
	if l.MaxEntries < 1 || l.MaxBytes < 1 || l.MaxFileBytes < 1 {
		return fmt.Errorf("%w: extraction limits must be positive", apperrors.ErrInvalidInput)
	}
	return nil
}

// Plan is a fully validated extraction job: Target is Root/Name and Root is
// canonical.
type Plan struct {
	Source string
	Root   string
	Name   string
	Target string
}

func (p Plan) Validate() error {
	if !filepath.IsAbs(p.Source) {
		return fmt.Errorf("%w: source archive must be absolute", apperrors.ErrInvalidInput)
	}
	if p.Name == "" || filepath.Join(p.Root, p.Name) != p.Target {
		return fmt.Errorf("%w: target %s does not match %s/%s", apperrors.ErrTraversalRejected, p.Target, p.Root, p.Name)
	}
	return nil
}

type Stats struct {
	Files         int
	Directories   int
	Links         int
	Bytes         int64
	ArchiveSHA256 string
	Replaced      bool
}

// Installed is the registry record of a finished extraction.
type Installed struct {
	ID            string
	Name          string
	TargetPath    string
	SourceArchive string
	ArchiveSHA256 string
	Files         int
	Bytes         int64
	ExtractedAt   time.Time
}
