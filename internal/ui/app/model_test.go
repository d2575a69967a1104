package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	bridgedto "dashext/internal/modules/bridge/dto"
	contentdomain "dashext/internal/modules/content/domain"
	contentdto "dashext/internal/modules/content/dto"
	loaderdomain "dashext/internal/modules/loader/domain"
	loaderdto "dashext/internal/modules/loader/dto"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/ui/components"
	componentview "dashext/internal/ui/views/component"
)

type fakeBridge struct {
	selected bridgedto.SelectFileOutput
	err      error
	uploads  []string
}

func (f *fakeBridge) SelectFile(context.Context) (bridgedto.SelectFileOutput, error) {
	return f.selected, f.err
}

func (f *fakeBridge) UploadAndExtract(_ context.Context, src, root string) (bridgedto.UploadOutput, error) {
	f.uploads = append(f.uploads, src+"|"+root)
	if strings.HasSuffix(src, "evil.tar") {
		return bridgedto.UploadOutput{}, fmt.Errorf("%w: ../x", apperrors.ErrTraversalRejected)
	}
	return bridgedto.UploadOutput{TargetPath: root + "/widgets"}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, target, entry string) (contentdto.ResolveOutput, error) {
	value := "http://127.0.0.1:3001/" + target[strings.LastIndex(target, "/")+1:] + "/" + entry
	return contentdto.ResolveOutput{Reference: contentdomain.Reference{Kind: contentdomain.KindServedURL, Value: value}}, nil
}

type fakeLoader struct {
	mu      sync.Mutex
	tickets uint64
	gen     uint64
	loads   []string
	fail    bool
}

func (f *fakeLoader) Reserve(context.Context) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets++
	return f.tickets
}

func (f *fakeLoader) LoadTicket(_ context.Context, _ uint64, kind, value string) loaderdto.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.loads = append(f.loads, kind+" "+value)
	if f.fail {
		return loaderdto.Snapshot{Generation: f.gen, State: loaderdomain.StateFailed, Error: "load failure: boom"}
	}
	return loaderdto.Snapshot{Generation: f.gen, State: loaderdomain.StateLoaded, Descriptor: loaderdto.Descriptor{Name: "widgets", Version: "1.0.0"}}
}

func (f *fakeLoader) Snapshot(context.Context) loaderdto.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return loaderdto.Snapshot{Generation: f.gen, State: loaderdomain.StateIdle}
}

func (f *fakeLoader) Render(_ context.Context, w, h int) (loaderdto.Frame, error) {
	return loaderdto.Frame{Content: fmt.Sprintf("widgets %dx%d", w, h)}, nil
}

func (f *fakeLoader) ReleaseTicket(context.Context, uint64) bool {
	f.mu.Lock()
	f.gen++
	f.mu.Unlock()
	return true
}

// run executes cmd and any batched commands, returning the produced messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func feed(t *testing.T, m Model, msg tea.Msg) (Model, []tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return model, run(cmd)
}

func find[T any](msgs []tea.Msg) (T, bool) {
	for _, msg := range msgs {
		if v, ok := msg.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func newTestModel(bridge *fakeBridge, loader *fakeLoader) Model {
	m := NewModel("/data/extensions", bridge, fakeResolver{}, loader)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestModelCancelledSelectionLeavesLoaderIdle(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{}
	loader := &fakeLoader{}
	m := newTestModel(bridge, loader)

	m, msgs := feed(t, m, selectedMsg{out: bridgedto.SelectFileOutput{}})
	if len(msgs) != 0 {
		t.Fatalf("cancel should not schedule work: %#v", msgs)
	}
	if len(bridge.uploads) != 0 || len(loader.loads) != 0 {
		t.Fatalf("nothing should be extracted or loaded: uploads=%v loads=%v", bridge.uploads, loader.loads)
	}
	if m.busy || m.status != "no archive selected" {
		t.Fatalf("busy=%v status=%q", m.busy, m.status)
	}
	if !strings.Contains(m.View(), "No component mounted") {
		t.Fatalf("idle view expected:\n%s", m.View())
	}
}

func TestModelSelectExtractResolveLoad(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{selected: bridgedto.SelectFileOutput{Path: "/home/u/widgets.tar.gz", Selected: true}}
	loader := &fakeLoader{}
	m := newTestModel(bridge, loader)

	exec := &selectExec{bridge: bridge}
	if err := exec.Run(); err != nil {
		t.Fatalf("select exec: %v", err)
	}
	m, msgs := feed(t, m, selectedMsg{out: exec.out})
	installed, ok := find[installedMsg](msgs)
	if !ok {
		t.Fatalf("expected installedMsg, got %#v", msgs)
	}
	if got := bridge.uploads; len(got) != 1 || got[0] != "/home/u/widgets.tar.gz|/data/extensions" {
		t.Fatalf("uploads = %v", got)
	}

	m, msgs = feed(t, m, installed)
	if m.view.Snapshot().State != loaderdomain.StateLoading {
		t.Fatalf("state = %q, want loading", m.view.Snapshot().State)
	}
	if !strings.Contains(m.View(), componentview.LoadingText) {
		t.Fatalf("loading fallback missing:\n%s", m.View())
	}
	loaded, ok := find[loadedMsg](msgs)
	if !ok {
		t.Fatalf("expected loadedMsg, got %#v", msgs)
	}
	if len(loader.loads) != 1 || loader.loads[0] != "served-url http://127.0.0.1:3001/widgets/" {
		t.Fatalf("loads = %v", loader.loads)
	}

	m, msgs = feed(t, m, loaded)
	frame, ok := find[componentview.FrameMsg](msgs)
	if !ok {
		t.Fatalf("expected a frame render, got %#v", msgs)
	}
	m, _ = feed(t, m, frame)
	view := m.View()
	if !strings.Contains(view, "widgets 1.0.0") || !strings.Contains(view, "widgets 78x") {
		t.Fatalf("mounted view missing content:\n%s", view)
	}
	if m.target != "/data/extensions/widgets" || m.busy {
		t.Fatalf("target=%q busy=%v", m.target, m.busy)
	}

	m, msgs = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if _, ok := find[loadedMsg](msgs); !ok || len(loader.loads) != 2 {
		t.Fatalf("reload should re-fetch: loads=%v", loader.loads)
	}

	_, msgs = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	released, ok := find[releasedMsg](msgs)
	if !ok || released.snapshot.State != loaderdomain.StateIdle {
		t.Fatalf("release = %#v", msgs)
	}
}

func TestModelReportsFailuresWithKind(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{}
	loader := &fakeLoader{fail: true}
	m := newTestModel(bridge, loader)

	m, _ = feed(t, m, selectedMsg{err: fmt.Errorf("%w: host gone", apperrors.ErrChannelFailure)})
	if !strings.Contains(m.status, "[channel_failure]") || m.busy {
		t.Fatalf("status = %q busy=%v", m.status, m.busy)
	}

	m, msgs := feed(t, m, selectedMsg{out: bridgedto.SelectFileOutput{Path: "/tmp/evil.tar", Selected: true}})
	installed, _ := find[installedMsg](msgs)
	m, _ = feed(t, m, installed)
	if !strings.Contains(m.status, "[traversal_rejected]") || len(loader.loads) != 0 {
		t.Fatalf("status=%q loads=%v", m.status, loader.loads)
	}

	m, msgs = feed(t, m, installedMsg{target: "/data/extensions/widgets", ref: contentdto.ResolveOutput{Reference: contentdomain.Reference{Kind: contentdomain.KindServedURL, Value: "http://127.0.0.1:3001/widgets/"}}})
	loaded, _ := find[loadedMsg](msgs)
	m, _ = feed(t, m, loaded)
	if m.view.Snapshot().State != loaderdomain.StateFailed || !strings.Contains(m.View(), "boom") {
		t.Fatalf("failed state not shown:\n%s", m.View())
	}
}

func TestModelIgnoresSupersededSnapshots(t *testing.T) {
	t.Parallel()
	m := newTestModel(&fakeBridge{}, &fakeLoader{})
	m, _ = feed(t, m, loadedMsg{snapshot: loaderdto.Snapshot{Generation: 3, State: loaderdomain.StateLoaded, Descriptor: loaderdto.Descriptor{Name: "b"}}})
	m, _ = feed(t, m, loadedMsg{snapshot: loaderdto.Snapshot{Generation: 2, Superseded: true}})
	m, _ = feed(t, m, loadedMsg{snapshot: loaderdto.Snapshot{Generation: 1, State: loaderdomain.StateLoaded, Descriptor: loaderdto.Descriptor{Name: "a"}}})
	if got := m.view.Snapshot(); got.Generation != 3 || got.Descriptor.Name != "b" {
		t.Fatalf("snapshot = %#v", got)
	}
}

func TestModelShowsOnlyTheLatestRequest(t *testing.T) {
	t.Parallel()
	loader := &fakeLoader{}
	m := newTestModel(&fakeBridge{}, loader)
	served := func(entry string) contentdto.ResolveOutput {
		return contentdto.ResolveOutput{Reference: contentdomain.Reference{Kind: contentdomain.KindServedURL, Value: "http://127.0.0.1:3001/widgets/" + entry}}
	}
	m, _ = feed(t, m, resolvedMsg{ref: served("a.bin")})
	first := m.ticket
	m, _ = feed(t, m, resolvedMsg{ref: served("b.bin")})
	second := m.ticket
	if first == 0 || second <= first {
		t.Fatalf("tickets not reserved in order: %d then %d", first, second)
	}

	// The earlier request finishing last, with a higher generation, must
	// not replace the later one.
	m, _ = feed(t, m, loadedMsg{ticket: second, snapshot: loaderdto.Snapshot{Generation: 4, State: loaderdomain.StateLoaded, Descriptor: loaderdto.Descriptor{Name: "b"}}})
	m, _ = feed(t, m, loadedMsg{ticket: first, snapshot: loaderdto.Snapshot{Generation: 5, State: loaderdomain.StateLoaded, Descriptor: loaderdto.Descriptor{Name: "a"}}})
	if got := m.view.Snapshot(); got.Descriptor.Name != "b" || m.busy {
		t.Fatalf("snapshot = %#v busy=%v", got, m.busy)
	}

	m, _ = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	releaseTicket := m.ticket
	m, _ = feed(t, m, resolvedMsg{ref: served("c.bin")})
	m, _ = feed(t, m, releasedMsg{ticket: releaseTicket, applied: true, snapshot: loaderdto.Snapshot{Generation: 6, State: loaderdomain.StateIdle}})
	if m.status == "component unmounted" {
		t.Fatal("a release overtaken by a newer load must be ignored")
	}
	m, _ = feed(t, m, releasedMsg{ticket: m.ticket, applied: false, snapshot: loaderdto.Snapshot{Generation: 7, State: loaderdomain.StateIdle}})
	if m.status == "component unmounted" {
		t.Fatal("a stale release must be ignored")
	}
}

func TestPaletteEntryNeedsExtractedTarget(t *testing.T) {
	t.Parallel()
	m := newTestModel(&fakeBridge{}, &fakeLoader{})
	m, msgs := feed(t, m, components.PaletteSubmitMsg{Input: "extension:entry bin/widget"})
	if len(msgs) != 0 || m.status != "no extension extracted yet" {
		t.Fatalf("status=%q msgs=%#v", m.status, msgs)
	}
	m.target = "/data/extensions/widgets"
	_, msgs = feed(t, m, components.PaletteSubmitMsg{Input: "extension:entry bin/widget"})
	resolved, ok := find[resolvedMsg](msgs)
	if !ok || resolved.ref.Reference.Value != "http://127.0.0.1:3001/widgets/bin/widget" {
		t.Fatalf("resolved = %#v", msgs)
	}
}
