package domain

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"

	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

type ReferenceKind string

const (
	RefLocalPath ReferenceKind = "local-path"
	RefServedURL ReferenceKind = "served-url"
)

// Reference is consumed once per load and never cached.
type Reference struct {
	Kind  ReferenceKind
	Value string
}

func (r Reference) Validate() error {
	switch r.Kind {
	case RefLocalPath:
		if !filepath.IsAbs(r.Value) {
			return fmt.Errorf("%w: local reference %q is not absolute", apperrors.ErrLoadFailure, r.Value)
		}
	case RefServedURL:
		u, err := url.Parse(r.Value)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			return fmt.Errorf("%w: served reference %q is not an http url", apperrors.ErrLoadFailure, r.Value)
		}
	default:
		return fmt.Errorf("%w: unknown reference kind %q", apperrors.ErrLoadFailure, r.Kind)
	}
	return nil
}

const (
	ManifestJSON = "extension.json"
	ManifestYAML = "extension.yaml"
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Manifest describes the component an extension ships.
type Manifest struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Entry   string `json:"entry" yaml:"entry"`
	SHA256  string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

func (m Manifest) Validate() error {
	if err := safepath.ValidateName(m.Name); err != nil {
		return fmt.Errorf("%w: manifest name: %v", apperrors.ErrLoadFailure, err)
	}
	if m.Version == "" {
		return fmt.Errorf("%w: manifest version is required", apperrors.ErrLoadFailure)
	}
	entry, err := safepath.CleanEntry(m.Entry)
	if err != nil || entry == "" {
		return fmt.Errorf("%w: manifest entry %q must be a relative path inside the extension", apperrors.ErrLoadFailure, m.Entry)
	}
	if m.SHA256 != "" && !sha256Pattern.MatchString(m.SHA256) {
		return fmt.Errorf("%w: manifest sha256 must be lowercase 64-char hex", apperrors.ErrLoadFailure)
	}
	return nil
}

// Module is fetched material ready to mount. EntryPath is always a local
// file; Cleanup, when set, removes anything the fetcher created.
type Module struct {
	Name      string
	Version   string
	Title     string
	Dir       string
	EntryPath string
	SHA256    string
	Source    string
	Cleanup   func()
}

func (m Module) Close() {
	if m.Cleanup != nil {
		m.Cleanup()
	}
}

func (m Module) Validate() error {
	if !filepath.IsAbs(m.EntryPath) {
		return fmt.Errorf("%w: entry path %q is not absolute", apperrors.ErrLoadFailure, m.EntryPath)
	}
	if !sha256Pattern.MatchString(m.SHA256) {
		return fmt.Errorf("%w: entry checksum missing", apperrors.ErrLoadFailure)
	}
	return nil
}

type Descriptor struct {
	Name    string
	Version string
	Title   string
}
