package app

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	bridgedto "dashext/internal/modules/bridge/dto"
	contentdto "dashext/internal/modules/content/dto"
	loaderdomain "dashext/internal/modules/loader/domain"
	loaderdto "dashext/internal/modules/loader/dto"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/ui/components"
	"dashext/internal/ui/theme"
	componentview "dashext/internal/ui/views/component"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type bridgePort interface {
	SelectFile(ctx context.Context) (bridgedto.SelectFileOutput, error)
	UploadAndExtract(ctx context.Context, sourceArchive, destinationRoot string) (bridgedto.UploadOutput, error)
}

type resolverPort interface {
	Resolve(ctx context.Context, targetPath, entry string) (contentdto.ResolveOutput, error)
}

// loaderPort takes a ticket reserved in Update for every load and release,
// so requests issued from command goroutines apply in key-press order.
type loaderPort interface {
	Reserve(ctx context.Context) uint64
	LoadTicket(ctx context.Context, ticket uint64, kind, value string) loaderdto.Snapshot
	Snapshot(ctx context.Context) loaderdto.Snapshot
	Render(ctx context.Context, width, height int) (loaderdto.Frame, error)
	ReleaseTicket(ctx context.Context, ticket uint64) bool
}

// ─── async messages ──────────────────────────────────────────────────────────

type selectedMsg struct {
	out bridgedto.SelectFileOutput
	err error
}

type installedMsg struct {
	target string
	ref    contentdto.ResolveOutput
	err    error
}

type resolvedMsg struct {
	ref contentdto.ResolveOutput
	err error
}

type loadedMsg struct {
	ticket   uint64
	snapshot loaderdto.Snapshot
}

type releasedMsg struct {
	ticket   uint64
	applied  bool
	snapshot loaderdto.Snapshot
}

// ─── key bindings ────────────────────────────────────────────────────────────

type keyMap struct {
	Open    key.Binding
	Reload  key.Binding
	Release key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Open:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open archive")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Release: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "unmount")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Help, k.Palette, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Reload, k.Release},
		{k.Help, k.Palette, k.Quit},
	}
}

var paletteCommands = []components.Command{
	{Name: "extension:open", Help: "choose and extract an archive"},
	{Name: "extension:entry", Args: "<file>", Help: "load another file of the current extension"},
	{Name: "extension:reload", Help: "fetch and mount the current reference again"},
	{Name: "extension:release", Help: "unmount the component"},
	{Name: "quit", Help: "exit"},
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model of the restricted UI. It never touches
// the filesystem outside what the resolver and loader allow; archive choice
// and extraction go through the bridge.
type Model struct {
	destinationRoot string

	bridge   bridgePort
	resolver resolverPort
	loader   loaderPort

	view     componentview.Model
	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette

	target  string
	current contentdto.ResolveOutput
	ticket  uint64
	busy    bool
	status  string
	width   int
	height  int
}

func NewModel(destinationRoot string, bridge bridgePort, resolver resolverPort, loader loaderPort) Model {
	return Model{
		destinationRoot: destinationRoot,
		bridge:          bridge,
		resolver:        resolver,
		loader:          loader,
		view:            componentview.New(loader),
		keys:            defaultKeys(),
		help:            help.New(),
		palette:         components.NewPalette(paletteCommands),
		status:          "ready",
	}
}

func (m Model) Init() tea.Cmd { return nil }

// ─── update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height - 3})
		return m, cmd

	case selectedMsg:
		switch {
		case msg.err != nil:
			m.busy = false
			m.status = describe("select-file", msg.err)
			return m, nil
		case !msg.out.Selected:
			m.busy = false
			m.status = "no archive selected"
			return m, nil
		}
		m.status = "extracting " + msg.out.Path
		return m, m.installCmd(msg.out.Path)

	case installedMsg:
		if msg.err != nil {
			m.busy = false
			m.status = describe("upload-and-extract", msg.err)
			return m, nil
		}
		m.target = msg.target
		return m.startLoad(msg.ref)

	case resolvedMsg:
		if msg.err != nil {
			m.busy = false
			m.status = describe("resolve", msg.err)
			return m, nil
		}
		return m.startLoad(msg.ref)

	case loadedMsg:
		if msg.ticket != m.ticket || msg.snapshot.Superseded {
			return m, nil
		}
		m.busy = false
		switch msg.snapshot.State {
		case loaderdomain.StateLoaded:
			m.status = "mounted " + msg.snapshot.Descriptor.Name
		case loaderdomain.StateFailed:
			m.status = "load failed"
		}
		cmd := m.view.Apply(msg.snapshot)
		return m, cmd

	case releasedMsg:
		if !msg.applied || msg.ticket != m.ticket {
			return m, nil
		}
		m.busy = false
		m.status = "component unmounted"
		cmd := m.view.Apply(msg.snapshot)
		return m, cmd

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"
		return m, nil

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
			return m, nil
		case key.Matches(msg, m.keys.Palette):
			cmd := m.palette.Open()
			return m, cmd
		case key.Matches(msg, m.keys.Open):
			return m.open()
		case key.Matches(msg, m.keys.Reload):
			return m.reload()
		case key.Matches(msg, m.keys.Release):
			return m.release()
		}
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m Model) open() (tea.Model, tea.Cmd) {
	if m.busy {
		m.status = "busy"
		return m, nil
	}
	m.busy = true
	m.status = "waiting for archive selection"
	run := &selectExec{bridge: m.bridge}
	return m, tea.Exec(run, func(err error) tea.Msg {
		if err != nil {
			return selectedMsg{err: err}
		}
		return selectedMsg{out: run.out}
	})
}

func (m Model) reload() (tea.Model, tea.Cmd) {
	if m.current.Reference.Value == "" {
		m.status = "nothing to reload"
		return m, nil
	}
	return m.startLoad(m.current)
}

func (m Model) startLoad(ref contentdto.ResolveOutput) (tea.Model, tea.Cmd) {
	m.current = ref
	m.busy = true
	m.status = "loading " + ref.Reference.Value
	m.ticket = m.loader.Reserve(context.Background())
	tick := m.view.BeginLoad()
	return m, tea.Batch(tick, m.loadCmd(m.ticket, ref))
}

func (m Model) release() (tea.Model, tea.Cmd) {
	m.ticket = m.loader.Reserve(context.Background())
	return m, m.releaseCmd(m.ticket)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := m.renderHeader()
	statusBar := m.renderStatusBar()
	contentH := max(m.height-lipgloss.Height(header)-lipgloss.Height(statusBar), 1)

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.view.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (m Model) renderHeader() string {
	target := m.target
	if target == "" {
		target = "(none)"
	}
	bar := "dashext  " + theme.Muted.Render("extension: "+target)
	return theme.Bar.Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	if s := m.view.Snapshot(); s.State == loaderdomain.StateLoaded {
		left = theme.Good.Render("● "+s.Descriptor.Name) + "  " + left
	}
	right := theme.Muted.Render("o:open  r:reload  x:unmount  ?:help  q:quit")
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return "\n" + theme.Bar.Width(m.width).Render(left+strings.Repeat(" ", gap)+right)
}

// ─── palette execution ───────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	switch parts[0] {
	case "extension:open":
		return m.open()
	case "extension:entry":
		if len(parts) != 2 {
			m.status = "usage: extension:entry <file>"
			return m, nil
		}
		if m.target == "" {
			m.status = "no extension extracted yet"
			return m, nil
		}
		m.busy = true
		return m, m.resolveCmd(m.target, parts[1])
	case "extension:reload":
		return m.reload()
	case "extension:release":
		return m.release()
	case "quit":
		return m, tea.Quit
	}
	m.status = "unknown command: " + parts[0]
	return m, nil
}

// ─── async commands ──────────────────────────────────────────────────────────

// selectExec runs select-file while Bubble Tea has released the terminal,
// so the host's picker can draw on it.
type selectExec struct {
	bridge bridgePort
	out    bridgedto.SelectFileOutput
}

func (e *selectExec) Run() error {
	out, err := e.bridge.SelectFile(context.Background())
	if err != nil {
		return err
	}
	e.out = out
	return nil
}

func (e *selectExec) SetStdin(io.Reader)  {}
func (e *selectExec) SetStdout(io.Writer) {}
func (e *selectExec) SetStderr(io.Writer) {}

func (m Model) installCmd(archive string) tea.Cmd {
	bridge, resolver, root := m.bridge, m.resolver, m.destinationRoot
	return func() tea.Msg {
		out, err := bridge.UploadAndExtract(context.Background(), archive, root)
		if err != nil {
			return installedMsg{err: err}
		}
		ref, err := resolver.Resolve(context.Background(), out.TargetPath, "")
		if err != nil {
			return installedMsg{err: err}
		}
		return installedMsg{target: out.TargetPath, ref: ref}
	}
}

func (m Model) resolveCmd(target, entry string) tea.Cmd {
	resolver := m.resolver
	return func() tea.Msg {
		ref, err := resolver.Resolve(context.Background(), target, entry)
		return resolvedMsg{ref: ref, err: err}
	}
}

func (m Model) loadCmd(ticket uint64, ref contentdto.ResolveOutput) tea.Cmd {
	loader := m.loader
	return func() tea.Msg {
		snap := loader.LoadTicket(context.Background(), ticket, string(ref.Reference.Kind), ref.Reference.Value)
		return loadedMsg{ticket: ticket, snapshot: snap}
	}
}

func (m Model) releaseCmd(ticket uint64) tea.Cmd {
	loader := m.loader
	return func() tea.Msg {
		applied := loader.ReleaseTicket(context.Background(), ticket)
		return releasedMsg{ticket: ticket, applied: applied, snapshot: loader.Snapshot(context.Background())}
	}
}

func describe(op string, err error) string {
	return op + " failed [" + string(apperrors.KindOf(err)) + "]: " + err.Error()
}
