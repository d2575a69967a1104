package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"dashext/internal/modules/loader/domain"
	loaderout "dashext/internal/modules/loader/port/out"
	apperrors "dashext/internal/platform/errors"
)

const defaultMaxEntryBytes = 128 << 20

type HTTPOptions struct {
	Client   *http.Client
	MaxBytes int64
	TempDir  string
}

// HTTPFetcher downloads a served extension from the loopback static server
// into a private temporary file.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	tempDir  string
}

func NewHTTPFetcher(opts HTTPOptions) loaderout.Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxEntryBytes
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes, tempDir: opts.TempDir}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref domain.Reference) (domain.Module, error) {
	if ref.Kind != domain.RefServedURL {
		return domain.Module{}, fmt.Errorf("%w: http fetcher cannot load %s", apperrors.ErrLoadFailure, ref.Kind)
	}
	target, err := url.Parse(ref.Value)
	if err != nil {
		return domain.Module{}, fmt.Errorf("%w: parse %s: %v", apperrors.ErrLoadFailure, ref.Value, err)
	}
	if err := requireLoopbackURL(target); err != nil {
		return domain.Module{}, err
	}

	dirURL := *target
	isDir := strings.HasSuffix(target.Path, "/")
	if !isDir {
		dirURL.Path = path.Dir(target.Path) + "/"
		dirURL.RawPath = ""
	}
	manifest, found, err := f.fetchManifest(ctx, &dirURL)
	if err != nil {
		return domain.Module{}, err
	}
	if !found && isDir {
		return domain.Module{}, fmt.Errorf("%w: %s has no manifest", apperrors.ErrLoadFailure, ref.Value)
	}
	entryURL := target
	if isDir {
		entryURL = dirURL.JoinPath(strings.Split(manifest.Entry, "/")...)
	} else if found && path.Join(dirURL.Path, manifest.Entry) != target.Path {
		found = false
	}

	entryPath, sum, cleanup, err := f.download(ctx, entryURL)
	if err != nil {
		return domain.Module{}, err
	}
	module := domain.Module{
		Name:      path.Base(strings.TrimSuffix(dirURL.Path, "/")),
		EntryPath: entryPath,
		SHA256:    sum,
		Source:    ref.Value,
		Cleanup:   cleanup,
	}
	if found {
		if manifest.SHA256 != "" && manifest.SHA256 != sum {
			cleanup()
			return domain.Module{}, fmt.Errorf("%w: %s does not match manifest checksum", apperrors.ErrLoadFailure, manifest.Entry)
		}
		module.Name, module.Version, module.Title = manifest.Name, manifest.Version, manifest.Title
	}
	return module, nil
}

func (f *HTTPFetcher) fetchManifest(ctx context.Context, dir *url.URL) (domain.Manifest, bool, error) {
	for _, name := range manifestFiles() {
		resp, err := f.get(ctx, dir.JoinPath(name))
		if err != nil {
			return domain.Manifest{}, false, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return domain.Manifest{}, false, fmt.Errorf("%w: get %s: %s", apperrors.ErrLoadFailure, name, resp.Status)
		}
		manifest, err := decodeManifest(name, resp.Body)
		resp.Body.Close()
		if err != nil {
			return domain.Manifest{}, false, err
		}
		return manifest, true, nil
	}
	return domain.Manifest{}, false, nil
}

func (f *HTTPFetcher) download(ctx context.Context, entry *url.URL) (string, string, func(), error) {
	resp, err := f.get(ctx, entry)
	if err != nil {
		return "", "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("%w: get %s: %s", apperrors.ErrLoadFailure, entry.Path, resp.Status)
	}

	tmp, err := os.CreateTemp(f.tempDir, "dashext-component-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: create temp entry: %v", apperrors.ErrLoadFailure, err)
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(resp.Body, f.maxBytes+1))
	closeErr := tmp.Close()
	switch {
	case err != nil:
		cleanup()
		return "", "", nil, fmt.Errorf("%w: download %s: %v", apperrors.ErrLoadFailure, entry.Path, err)
	case closeErr != nil:
		cleanup()
		return "", "", nil, fmt.Errorf("%w: write temp entry: %v", apperrors.ErrLoadFailure, closeErr)
	case n > f.maxBytes:
		cleanup()
		return "", "", nil, fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrLoadFailure, entry.Path, f.maxBytes)
	}
	if err := os.Chmod(name, 0o700); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("%w: chmod temp entry: %v", apperrors.ErrLoadFailure, err)
	}
	return name, hex.EncodeToString(h.Sum(nil)), cleanup, nil
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", apperrors.ErrLoadFailure, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", apperrors.ErrLoadFailure, u.Path, err)
	}
	return resp, nil
}

func requireLoopbackURL(u *url.URL) error {
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%w: served reference %s is not on loopback", apperrors.ErrLoadFailure, u.Redacted())
}
