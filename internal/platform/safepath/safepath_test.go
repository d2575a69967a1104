package safepath_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

func TestDeriveName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		archive string
		want    string
		wantErr error
	}{
		{name: "tar gz", archive: "/tmp/bundle.tar.gz", want: "bundle"},
		{name: "tgz", archive: "widgets.tgz", want: "widgets"},
		{name: "many dots", archive: "a.b.c.tar", want: "a"},
		{name: "windows separator", archive: `C:\incoming\charts.tar`, want: "charts"},
		{name: "only extension", archive: ".tar.gz", wantErr: apperrors.ErrTraversalRejected},
		{name: "dot dot", archive: "/tmp/..", wantErr: apperrors.ErrTraversalRejected},
		{name: "empty", archive: "", wantErr: apperrors.ErrTraversalRejected},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := safepath.DeriveName(tc.archive)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got name=%q err=%v", tc.wantErr, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("derive name: %v", err)
			}
			if got != tc.want {
				t.Fatalf("DeriveName(%q) = %q, want %q", tc.archive, got, tc.want)
			}
		})
	}
}

func TestValidateNameRejectsUnsafeNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "nul\x00", ".staging-x"} {
		if err := safepath.ValidateName(name); !errors.Is(err, apperrors.ErrTraversalRejected) {
			t.Fatalf("expected %q to be rejected, got %v", name, err)
		}
	}
	if err := safepath.ValidateName("widgets"); err != nil {
		t.Fatalf("expected plain name to pass: %v", err)
	}
}

func TestTargetPathIsStrictDescendant(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	canonical, name, target, err := safepath.TargetPath(filepath.Join(root, "ext", "..", "ext"), "/downloads/a.tar.gz")
	if err != nil {
		t.Fatalf("target path: %v", err)
	}
	if name != "a" {
		t.Fatalf("unexpected name: %s", name)
	}
	if filepath.Dir(target) != canonical || filepath.Base(target) != "a" {
		t.Fatalf("target %s is not a direct child of %s", target, canonical)
	}
	if !safepath.Within(canonical, target) {
		t.Fatalf("target must be inside root")
	}
}

func TestTargetPathRejectsSymlinkedTarget(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "evil")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, _, _, err := safepath.TargetPath(root, "evil.tar"); !errors.Is(err, apperrors.ErrTraversalRejected) {
		t.Fatalf("expected symlinked target to be rejected, got %v", err)
	}
}

func TestEntryPath(t *testing.T) {
	t.Parallel()
	target := filepath.Join(t.TempDir(), "widgets")
	cases := []struct {
		stored  string
		want    string
		wantErr error
	}{
		{stored: "index.js", want: filepath.Join(target, "index.js")},
		{stored: "./assets/logo.png", want: filepath.Join(target, "assets", "logo.png")},
		{stored: "assets//nested/", want: filepath.Join(target, "assets", "nested")},
		{stored: "./", want: ""},
		{stored: "../../etc/passwd", wantErr: apperrors.ErrTraversalRejected},
		{stored: "assets/../../x", wantErr: apperrors.ErrTraversalRejected},
		{stored: "/etc/passwd", wantErr: apperrors.ErrTraversalRejected},
		{stored: `..\evil`, wantErr: apperrors.ErrTraversalRejected},
		{stored: "C:/windows", wantErr: apperrors.ErrTraversalRejected},
		{stored: "", wantErr: apperrors.ErrInvalidArchive},
	}
	for _, tc := range cases {
		got, err := safepath.EntryPath(target, tc.stored)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("EntryPath(%q): expected %v, got %q %v", tc.stored, tc.wantErr, got, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("EntryPath(%q): %v", tc.stored, err)
		}
		if got != tc.want {
			t.Fatalf("EntryPath(%q) = %q, want %q", tc.stored, got, tc.want)
		}
	}
}

func TestLinkTarget(t *testing.T) {
	t.Parallel()
	target := "/data/ext/widgets"
	link := filepath.Join(target, "assets", "current")
	if got, err := safepath.LinkTarget(target, link, "v2/logo.png"); err != nil || got != filepath.Join(target, "assets", "v2", "logo.png") {
		t.Fatalf("expected forward link to pass, got %q %v", got, err)
	}
	for _, bad := range []string{"/etc/passwd", "../index.js", "a/../../b", ""} {
		if _, err := safepath.LinkTarget(target, link, bad); err == nil {
			t.Fatalf("expected link target %q to be rejected", bad)
		}
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()
	cases := []struct {
		base, path string
		want       bool
	}{
		{"/data/ext", "/data/ext/a", true},
		{"/data/ext", "/data/ext/a/b", true},
		{"/data/ext", "/data/ext", false},
		{"/data/ext", "/data/extra", false},
		{"/data/ext", "/data", false},
		{"/data/ext", "/data/ext/../etc", false},
		{"/data/ext", "/data/ext/..foo", true},
	}
	for _, tc := range cases {
		if got := safepath.Within(tc.base, tc.path); got != tc.want {
			t.Fatalf("Within(%q, %q) = %t, want %t", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestIsAcceptedArchive(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"a.tar":       true,
		"a.TAR.GZ":    true,
		"a.tgz":       true,
		"a.zip":       false,
		"a.gz":        false,
		".tar":        false,
		"tar":         false,
		"/x/y/b.tar":  true,
		"b.tar.bz2":   false,
		"b.tar.gz.sh": false,
	} {
		if got := safepath.IsAcceptedArchive(name); got != want {
			t.Fatalf("IsAcceptedArchive(%q) = %t, want %t", name, got, want)
		}
	}
}
