package domain

import (
	"fmt"
	"net/url"
	"path/filepath"

	apperrors "dashext/internal/platform/errors"
)

type ReferenceKind string

const (
	KindLocalPath ReferenceKind = "local-path"
	KindServedURL ReferenceKind = "served-url"
)

// DeliveryMode selects how extracted payloads reach the loader.
type DeliveryMode string

const (
	DeliveryDirect DeliveryMode = "direct"
	DeliveryServed DeliveryMode = "served"
)

func ParseDeliveryMode(raw string) (DeliveryMode, error) {
	switch DeliveryMode(raw) {
	case DeliveryDirect, DeliveryServed:
		return DeliveryMode(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown delivery mode %q", apperrors.ErrInvalidInput, raw)
	}
}

// Reference is a loadable pointer to extracted content. It is produced only
// from an extraction result, never from free-form input.
type Reference struct {
	Kind  ReferenceKind `json:"kind"`
	Value string        `json:"value"`
}

func (r Reference) Validate() error {
	switch r.Kind {
	case KindLocalPath:
		if !filepath.IsAbs(r.Value) {
			return fmt.Errorf("%w: local reference %q is not absolute", apperrors.ErrInvalidInput, r.Value)
		}
	case KindServedURL:
		u, err := url.Parse(r.Value)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			return fmt.Errorf("%w: served reference %q is not an http url", apperrors.ErrInvalidInput, r.Value)
		}
	default:
		return fmt.Errorf("%w: unknown reference kind %q", apperrors.ErrInvalidInput, r.Kind)
	}
	return nil
}
