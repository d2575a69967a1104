package out

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"dashext/internal/modules/loader/domain"
	apperrors "dashext/internal/platform/errors"
)

const maxManifestBytes = 64 << 10

// decodeManifest parses an extension manifest named by file. Unknown fields
// are rejected in both encodings.
func decodeManifest(file string, r io.Reader) (domain.Manifest, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxManifestBytes+1))
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrLoadFailure, file, err)
	}
	if len(raw) > maxManifestBytes {
		return domain.Manifest{}, fmt.Errorf("%w: %s is larger than %d bytes", apperrors.ErrLoadFailure, file, maxManifestBytes)
	}
	var manifest domain.Manifest
	switch file {
	case domain.ManifestJSON:
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&manifest); err != nil {
			return domain.Manifest{}, fmt.Errorf("%w: decode %s: %v", apperrors.ErrLoadFailure, file, err)
		}
	case domain.ManifestYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		if err := decoder.Decode(&manifest); err != nil {
			return domain.Manifest{}, fmt.Errorf("%w: decode %s: %v", apperrors.ErrLoadFailure, file, err)
		}
	default:
		return domain.Manifest{}, fmt.Errorf("%w: unsupported manifest %s", apperrors.ErrLoadFailure, file)
	}
	if err := manifest.Validate(); err != nil {
		return domain.Manifest{}, err
	}
	return manifest, nil
}

func manifestFiles() []string {
	return []string{domain.ManifestJSON, domain.ManifestYAML}
}
