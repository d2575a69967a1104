package out

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"

	"dashext/internal/modules/extension/domain"
	extensionout "dashext/internal/modules/extension/port/out"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
	execMode os.FileMode = 0o755
)

type TarOptions struct {
	Limits   domain.Limits
	Existing domain.ExistingPolicy
	Symlinks domain.SymlinkPolicy
	Logger   hclog.Logger
}

// TarExtractor unpacks tar and tar+gzip archives into a private staging
// directory next to the target and renames it into place on success.
type TarExtractor struct {
	limits   domain.Limits
	existing domain.ExistingPolicy
	symlinks domain.SymlinkPolicy
	log      hclog.Logger
}

func NewTarExtractor(opts TarOptions) (extensionout.Extractor, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	switch opts.Existing {
	case domain.ExistingReject, domain.ExistingReplace:
	case "":
		opts.Existing = domain.ExistingReject
	default:
		return nil, fmt.Errorf("%w: existing policy %q", apperrors.ErrInvalidInput, opts.Existing)
	}
	switch opts.Symlinks {
	case domain.SymlinksReject, domain.SymlinksContain:
	case "":
		opts.Symlinks = domain.SymlinksReject
	default:
		return nil, fmt.Errorf("%w: symlink policy %q", apperrors.ErrInvalidInput, opts.Symlinks)
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &TarExtractor{limits: opts.Limits, existing: opts.Existing, symlinks: opts.Symlinks, log: logger.Named("tar")}, nil
}

type targetState int

const (
	targetAbsent targetState = iota
	targetEmpty
	targetPopulated
)

func (x *TarExtractor) Extract(ctx context.Context, plan domain.Plan) (domain.Stats, error) {
	if err := plan.Validate(); err != nil {
		return domain.Stats{}, err
	}
	state, err := inspectTarget(plan.Target)
	if err != nil {
		return domain.Stats{}, err
	}
	if state == targetPopulated && x.existing != domain.ExistingReplace {
		return domain.Stats{}, fmt.Errorf("%w: %s is not empty", apperrors.ErrAlreadyExists, plan.Target)
	}

	file, err := os.Open(plan.Source)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("%w: open %s: %v", apperrors.ErrInvalidArchive, filepath.Base(plan.Source), err)
	}
	defer file.Close()

	hasher := sha256.New()
	buffered := bufio.NewReader(io.TeeReader(file, hasher))
	stream, err := openStream(buffered, plan.Source)
	if err != nil {
		return domain.Stats{}, err
	}
	defer stream.Close()

	staging, err := os.MkdirTemp(plan.Root, safepath.StagingPrefix+plan.Name+"-")
	if err != nil {
		return domain.Stats{}, fmt.Errorf("%w: create staging dir: %v", apperrors.ErrFilesystemFailure, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			x.log.Error("rollback failed", "staging", staging, "error", rmErr)
		}
	}()

	stats, err := x.unpack(ctx, tar.NewReader(stream), staging)
	if err != nil {
		return domain.Stats{}, err
	}
	if _, err := io.Copy(io.Discard, buffered); err != nil {
		return domain.Stats{}, fmt.Errorf("%w: read trailing data: %v", apperrors.ErrInvalidArchive, err)
	}
	stats.ArchiveSHA256 = hex.EncodeToString(hasher.Sum(nil))

	if err := os.Chmod(staging, dirMode); err != nil {
		return domain.Stats{}, fmt.Errorf("%w: chmod staging dir: %v", apperrors.ErrFilesystemFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Stats{}, fmt.Errorf("%w: extraction cancelled: %v", apperrors.ErrFilesystemFailure, err)
	}
	replaced, err := commit(staging, plan.Target, state)
	if err != nil {
		return domain.Stats{}, err
	}
	committed = true
	stats.Replaced = replaced
	return stats, nil
}

func (x *TarExtractor) unpack(ctx context.Context, tr *tar.Reader, staging string) (domain.Stats, error) {
	stats := domain.Stats{}
	regular := map[string]struct{}{}
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%w: extraction cancelled: %v", apperrors.ErrFilesystemFailure, err)
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%w: read entry: %v", apperrors.ErrInvalidArchive, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		entries++
		if entries > x.limits.MaxEntries {
			return stats, fmt.Errorf("%w: more than %d entries", apperrors.ErrInvalidArchive, x.limits.MaxEntries)
		}

		entry := toEntry(hdr)
		dest, err := safepath.EntryPath(staging, entry.Path)
		if err != nil {
			return stats, err
		}
		if dest == "" {
			if entry.Kind == domain.EntryDirectory {
				continue
			}
			return stats, fmt.Errorf("%w: entry %q names the extension root", apperrors.ErrTraversalRejected, entry.Path)
		}

		switch entry.Kind {
		case domain.EntryDirectory:
			if err := makeDir(staging, dest); err != nil {
				return stats, err
			}
			stats.Directories++
		case domain.EntryFile:
			if entry.Size > x.limits.MaxFileBytes {
				return stats, fmt.Errorf("%w: entry %q exceeds %d bytes", apperrors.ErrInvalidArchive, entry.Path, x.limits.MaxFileBytes)
			}
			if stats.Bytes+entry.Size > x.limits.MaxBytes {
				return stats, fmt.Errorf("%w: archive expands beyond %d bytes", apperrors.ErrInvalidArchive, x.limits.MaxBytes)
			}
			if err := writeFile(staging, dest, tr, entry); err != nil {
				return stats, err
			}
			key, err := resolvedPath(staging, dest)
			if err != nil {
				return stats, err
			}
			regular[key] = struct{}{}
			stats.Files++
			stats.Bytes += entry.Size
		case domain.EntrySymlink:
			if x.symlinks != domain.SymlinksContain {
				return stats, fmt.Errorf("%w: symlink entry %q", apperrors.ErrTraversalRejected, entry.Path)
			}
			if err := makeSymlink(staging, dest, entry); err != nil {
				return stats, err
			}
			stats.Links++
		case domain.EntryHardlink:
			if err := makeHardlink(staging, dest, entry, regular); err != nil {
				return stats, err
			}
			stats.Links++
		default:
			return stats, fmt.Errorf("%w: entry %q has disallowed type %q", apperrors.ErrTraversalRejected, entry.Path, string(hdr.Typeflag))
		}
	}
	if entries == 0 {
		return stats, fmt.Errorf("%w: archive has no entries", apperrors.ErrInvalidArchive)
	}
	return stats, nil
}

func toEntry(hdr *tar.Header) domain.ArchiveEntry {
	entry := domain.ArchiveEntry{Path: hdr.Name, Size: hdr.Size, LinkTarget: hdr.Linkname}
	switch hdr.Typeflag {
	case tar.TypeDir:
		entry.Kind = domain.EntryDirectory
	case tar.TypeReg:
		entry.Kind = domain.EntryFile
		entry.Executable = hdr.Mode&0o111 != 0
	case tar.TypeSymlink:
		entry.Kind = domain.EntrySymlink
	case tar.TypeLink:
		entry.Kind = domain.EntryHardlink
	default:
		entry.Kind = domain.EntryOther
	}
	return entry
}

func openStream(r *bufio.Reader, name string) (io.ReadCloser, error) {
	magic, err := r.Peek(2)
	isGzip := err == nil && magic[0] == 0x1f && magic[1] == 0x8b
	if safepath.IsGzipName(name) && !isGzip {
		return nil, fmt.Errorf("%w: %s is not gzip compressed", apperrors.ErrInvalidArchive, filepath.Base(name))
	}
	if !isGzip {
		return io.NopCloser(r), nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", apperrors.ErrInvalidArchive, err)
	}
	gz.Multistream(false)
	return gz, nil
}

func inspectTarget(target string) (targetState, error) {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return targetAbsent, nil
	}
	if err != nil {
		return targetAbsent, fmt.Errorf("%w: stat %s: %v", apperrors.ErrFilesystemFailure, target, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return targetAbsent, fmt.Errorf("%w: target %s is a symlink", apperrors.ErrTraversalRejected, target)
	}
	if !info.IsDir() {
		return targetAbsent, fmt.Errorf("%w: %s exists and is not a directory", apperrors.ErrAlreadyExists, target)
	}
	dir, err := os.Open(target)
	if err != nil {
		return targetAbsent, fmt.Errorf("%w: open %s: %v", apperrors.ErrFilesystemFailure, target, err)
	}
	defer dir.Close()
	if _, err := dir.Readdirnames(1); errors.Is(err, io.EOF) {
		return targetEmpty, nil
	} else if err != nil {
		return targetAbsent, fmt.Errorf("%w: read %s: %v", apperrors.ErrFilesystemFailure, target, err)
	}
	return targetPopulated, nil
}

// commit moves staging to target. A populated target is only removed once
// the new tree is in place.
func commit(staging, target string, state targetState) (bool, error) {
	switch state {
	case targetEmpty:
		if err := os.Remove(target); err != nil {
			return false, fmt.Errorf("%w: remove empty target: %v", apperrors.ErrFilesystemFailure, err)
		}
	case targetPopulated:
		old := staging + ".old"
		if err := os.Rename(target, old); err != nil {
			return false, fmt.Errorf("%w: move previous target aside: %v", apperrors.ErrFilesystemFailure, err)
		}
		if err := os.Rename(staging, target); err != nil {
			_ = os.Rename(old, target)
			return false, fmt.Errorf("%w: install target: %v", apperrors.ErrFilesystemFailure, err)
		}
		if err := os.RemoveAll(old); err != nil {
			return true, fmt.Errorf("%w: remove previous target: %v", apperrors.ErrFilesystemFailure, err)
		}
		return true, nil
	}
	if err := os.Rename(staging, target); err != nil {
		if os.IsExist(err) || errors.Is(err, os.ErrExist) {
			return false, fmt.Errorf("%w: %s appeared during extraction", apperrors.ErrAlreadyExists, target)
		}
		return false, fmt.Errorf("%w: install target: %v", apperrors.ErrFilesystemFailure, err)
	}
	return false, nil
}

func makeDir(staging, dest string) error {
	if err := safepath.RealParentWithin(staging, dest); err != nil {
		if !errors.Is(err, apperrors.ErrFilesystemFailure) {
			return err
		}
		if err := makeDir(staging, filepath.Dir(dest)); err != nil {
			return err
		}
	}
	info, err := os.Lstat(dest)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%w: %s already exists as a non-directory", apperrors.ErrInvalidArchive, filepath.Base(dest))
	case !os.IsNotExist(err):
		return fmt.Errorf("%w: stat %s: %v", apperrors.ErrFilesystemFailure, dest, err)
	}
	if err := os.Mkdir(dest, dirMode); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", apperrors.ErrFilesystemFailure, dest, err)
	}
	return nil
}

func ensureParent(staging, dest string) error {
	parent := filepath.Dir(dest)
	if parent != staging {
		if err := makeDir(staging, parent); err != nil {
			return err
		}
	}
	return safepath.RealParentWithin(staging, dest)
}

type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil {
		r.err = err
	}
	return n, err
}

func writeFile(staging, dest string, src io.Reader, entry domain.ArchiveEntry) error {
	if err := ensureParent(staging, dest); err != nil {
		return err
	}
	mode := fileMode
	if entry.Executable {
		mode = execMode
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: duplicate entry %q", apperrors.ErrInvalidArchive, entry.Path)
		}
		return fmt.Errorf("%w: create %s: %v", apperrors.ErrFilesystemFailure, entry.Path, err)
	}
	w := &recordingWriter{w: f}
	_, copyErr := io.CopyN(w, src, entry.Size)
	closeErr := f.Close()
	if copyErr != nil {
		if w.err != nil {
			return fmt.Errorf("%w: write %s: %v", apperrors.ErrFilesystemFailure, entry.Path, w.err)
		}
		return fmt.Errorf("%w: truncated entry %q: %v", apperrors.ErrInvalidArchive, entry.Path, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %v", apperrors.ErrFilesystemFailure, entry.Path, closeErr)
	}
	return nil
}

func makeSymlink(staging, dest string, entry domain.ArchiveEntry) error {
	if err := ensureParent(staging, dest); err != nil {
		return err
	}
	realParent, err := filepath.EvalSymlinks(filepath.Dir(dest))
	if err != nil {
		return fmt.Errorf("%w: resolve parent of %q: %v", apperrors.ErrFilesystemFailure, entry.Path, err)
	}
	if _, err := safepath.LinkTarget(staging, filepath.Join(realParent, filepath.Base(dest)), entry.LinkTarget); err != nil {
		return fmt.Errorf("%w (entry %q)", err, entry.Path)
	}
	if err := os.Symlink(filepath.FromSlash(entry.LinkTarget), dest); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: duplicate entry %q", apperrors.ErrInvalidArchive, entry.Path)
		}
		return fmt.Errorf("%w: symlink %s: %v", apperrors.ErrFilesystemFailure, entry.Path, err)
	}
	return nil
}

// resolvedPath evaluates symlinks in the parent of path, which must exist
// and stay inside staging. Regular files are tracked by this path so that
// hard links can name them through a contained directory link.
func resolvedPath(staging, path string) (string, error) {
	if err := safepath.RealParentWithin(staging, path); err != nil {
		return "", err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", apperrors.ErrFilesystemFailure, filepath.Dir(path), err)
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

func makeHardlink(staging, dest string, entry domain.ArchiveEntry, regular map[string]struct{}) error {
	lexical, err := safepath.EntryPath(staging, entry.LinkTarget)
	if err != nil {
		return fmt.Errorf("%w (hard link %q)", err, entry.Path)
	}
	source, err := resolvedPath(staging, lexical)
	if err != nil && !errors.Is(err, apperrors.ErrFilesystemFailure) {
		return fmt.Errorf("%w (hard link %q)", err, entry.Path)
	}
	if _, ok := regular[source]; err != nil || !ok {
		return fmt.Errorf("%w: hard link %q must reference an extracted file", apperrors.ErrTraversalRejected, entry.Path)
	}
	if err := ensureParent(staging, dest); err != nil {
		return err
	}
	if err := os.Link(source, dest); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: duplicate entry %q", apperrors.ErrInvalidArchive, entry.Path)
		}
		return fmt.Errorf("%w: link %s: %v", apperrors.ErrFilesystemFailure, entry.Path, err)
	}
	return nil
}
