package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dashext/internal/modules/loader/domain"
	loaderout "dashext/internal/modules/loader/port/out"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

// LocalFetcher reads an extension straight from disk. A directory reference
// must carry a manifest; a file reference is its own entry and may sit next
// to an optional manifest.
type LocalFetcher struct{}

func NewLocalFetcher() loaderout.Fetcher {
	return LocalFetcher{}
}

func (LocalFetcher) Fetch(ctx context.Context, ref domain.Reference) (domain.Module, error) {
	if ref.Kind != domain.RefLocalPath {
		return domain.Module{}, fmt.Errorf("%w: local fetcher cannot load %s", apperrors.ErrLoadFailure, ref.Kind)
	}
	if err := ctx.Err(); err != nil {
		return domain.Module{}, fmt.Errorf("%w: %v", apperrors.ErrLoadFailure, err)
	}
	path, err := filepath.EvalSymlinks(filepath.Clean(ref.Value))
	if err != nil {
		return domain.Module{}, fmt.Errorf("%w: resolve %s: %v", apperrors.ErrLoadFailure, ref.Value, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Module{}, fmt.Errorf("%w: stat %s: %v", apperrors.ErrLoadFailure, path, err)
	}

	dir, entry := path, ""
	if !info.IsDir() {
		dir, entry = filepath.Dir(path), path
	}
	manifest, found, err := readLocalManifest(dir)
	if err != nil {
		return domain.Module{}, err
	}
	if !found && entry == "" {
		return domain.Module{}, fmt.Errorf("%w: %s has no %s or %s", apperrors.ErrLoadFailure, dir, domain.ManifestJSON, domain.ManifestYAML)
	}
	if found {
		declared, err := entryWithin(dir, manifest.Entry)
		if err != nil {
			return domain.Module{}, err
		}
		if entry == "" {
			entry = declared
		} else if declared != entry {
			// The referenced file is not the declared component.
			found = false
		}
	}

	sum, err := hashFile(entry)
	if err != nil {
		return domain.Module{}, err
	}
	module := domain.Module{
		Name:      filepath.Base(dir),
		Dir:       dir,
		EntryPath: entry,
		SHA256:    sum,
		Source:    ref.Value,
	}
	if found {
		if manifest.SHA256 != "" && manifest.SHA256 != sum {
			return domain.Module{}, fmt.Errorf("%w: %s does not match manifest checksum", apperrors.ErrLoadFailure, manifest.Entry)
		}
		module.Name, module.Version, module.Title = manifest.Name, manifest.Version, manifest.Title
	}
	return module, nil
}

func readLocalManifest(dir string) (domain.Manifest, bool, error) {
	for _, name := range manifestFiles() {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return domain.Manifest{}, false, fmt.Errorf("%w: open %s: %v", apperrors.ErrLoadFailure, name, err)
		}
		manifest, err := decodeManifest(name, f)
		_ = f.Close()
		if err != nil {
			return domain.Manifest{}, false, err
		}
		return manifest, true, nil
	}
	return domain.Manifest{}, false, nil
}

// entryWithin resolves a manifest entry and requires it to stay in dir.
func entryWithin(dir, entry string) (string, error) {
	full, err := safepath.EntryPath(dir, entry)
	if err != nil || full == "" {
		return "", fmt.Errorf("%w: manifest entry %q escapes %s", apperrors.ErrLoadFailure, entry, dir)
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", fmt.Errorf("%w: resolve entry %s: %v", apperrors.ErrLoadFailure, entry, err)
	}
	if !safepath.Within(dir, resolved) {
		return "", fmt.Errorf("%w: manifest entry %q resolves outside %s", apperrors.ErrLoadFailure, entry, dir)
	}
	return resolved, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open entry: %v", apperrors.ErrLoadFailure, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: entry %s is not a regular file", apperrors.ErrLoadFailure, path)
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash entry: %v", apperrors.ErrLoadFailure, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
