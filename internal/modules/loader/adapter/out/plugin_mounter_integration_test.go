package out_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	loaderout "dashext/internal/modules/loader/adapter/out"
	"dashext/internal/modules/loader/domain"
	apperrors "dashext/internal/platform/errors"
)

func TestPluginMounterReferenceWidget(t *testing.T) {
	binPath, checksum := buildReferenceWidget(t)
	cleaned := false
	module := domain.Module{
		Name:      "reference-widget",
		Dir:       filepath.Dir(binPath),
		EntryPath: binPath,
		SHA256:    checksum,
		Cleanup:   func() { cleaned = true },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	handle, err := loaderout.NewPluginMounter(nil).Mount(ctx, module)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if desc := handle.Descriptor(); desc.Name != "reference-widget" || desc.Version != "1.0.0" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
	frame, err := handle.Render(ctx, 20, 4)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(frame, "20x4") {
		t.Fatalf("unexpected frame %q", frame)
	}
	handle.Release()
	handle.Release()
	if !cleaned {
		t.Fatalf("release must run module cleanup")
	}
	if _, err := handle.Render(ctx, 20, 4); err == nil {
		t.Fatalf("expected render to fail after release")
	}
}

func TestPluginMounterRejectsChecksumMismatch(t *testing.T) {
	binPath, _ := buildReferenceWidget(t)
	module := domain.Module{
		Name:      "reference-widget",
		EntryPath: binPath,
		SHA256:    strings.Repeat("0", 64),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := loaderout.NewPluginMounter(nil).Mount(ctx, module); !errors.Is(err, apperrors.ErrLoadFailure) {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func buildReferenceWidget(t *testing.T) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	binPath := filepath.Join(tmp, "reference-widget")
	cmd := exec.Command("go", "build", "-o", binPath, "./plugins/reference-widget")
	cmd.Dir = repositoryRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build reference widget: %v\n%s", err, string(out))
	}
	payload, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatalf("read built widget: %v", err)
	}
	hash := sha256.Sum256(payload)
	return binPath, hex.EncodeToString(hash[:])
}

func repositoryRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../../../../../"))
}
