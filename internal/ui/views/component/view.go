package component

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	loaderdomain "dashext/internal/modules/loader/domain"
	loaderdto "dashext/internal/modules/loader/dto"
	"dashext/internal/ui/theme"
)

// LoadingText is shown while a component is being fetched and mounted.
const LoadingText = "Loading component..."

// Port is the slice of the loader this view draws from.
type Port interface {
	Render(ctx context.Context, width, height int) (loaderdto.Frame, error)
}

// FrameMsg carries a rendered frame for one loader generation.
type FrameMsg struct {
	Generation uint64
	Content    string
	Err        error
}

// Model shows the mounted component, or the loader state when nothing is
// mounted.
type Model struct {
	port     Port
	snapshot loaderdto.Snapshot
	frameErr string
	output   viewport.Model
	spinner  spinner.Model
	width    int
	height   int
}

func New(port Port) Model {
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)
	return Model{port: port, output: vp, spinner: sp}
}

func (m Model) Snapshot() loaderdto.Snapshot { return m.snapshot }

// BeginLoad puts the view into the loading fallback.
func (m *Model) BeginLoad() tea.Cmd {
	m.snapshot = loaderdto.Snapshot{Generation: m.snapshot.Generation, State: loaderdomain.StateLoading}
	m.frameErr = ""
	m.output.SetContent("")
	return m.spinner.Tick
}

// Apply records a loader snapshot. Superseded and stale snapshots are
// dropped. A render is requested when a component is mounted.
func (m *Model) Apply(s loaderdto.Snapshot) tea.Cmd {
	if s.Superseded || s.Generation < m.snapshot.Generation {
		return nil
	}
	m.snapshot = s
	m.frameErr = ""
	if s.State != loaderdomain.StateLoaded {
		m.output.SetContent("")
		return nil
	}
	return m.renderCmd()
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = max(m.width-2, 1)
		m.output.Height = max(m.height-3, 1)
		if m.snapshot.State == loaderdomain.StateLoaded {
			return m, m.renderCmd()
		}
		return m, nil

	case FrameMsg:
		if msg.Generation != m.snapshot.Generation || m.snapshot.State != loaderdomain.StateLoaded {
			return m, nil
		}
		if msg.Err != nil {
			m.frameErr = msg.Err.Error()
			m.output.SetContent("")
			return m, nil
		}
		m.frameErr = ""
		m.output.SetContent(msg.Content)
		m.output.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if m.snapshot.State != loaderdomain.StateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	switch m.snapshot.State {
	case loaderdomain.StateLoading:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" "+LoadingText)
	case loaderdomain.StateFailed:
		body := theme.Bad.Render("Component failed to load") + "\n\n" + m.snapshot.Error
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
	case loaderdomain.StateLoaded:
		return m.renderLoaded()
	}
	hint := theme.Muted.Render("No component mounted. Press o to choose an extension archive.")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, hint)
}

func (m Model) renderLoaded() string {
	d := m.snapshot.Descriptor
	title := d.Title
	if title == "" {
		title = d.Name
	}
	header := theme.Title.Render(title) + "  " + theme.Muted.Render(d.Name+" "+d.Version)
	body := m.output.View()
	if m.frameErr != "" {
		body = theme.Bad.Render("render failed: ") + m.frameErr
	}
	frame := theme.FrameLive.Width(max(m.width-2, 1)).Height(max(m.height-3, 1)).Render(body)
	return strings.Join([]string{header, frame}, "\n")
}

func (m Model) renderCmd() tea.Cmd {
	gen := m.snapshot.Generation
	w, h := m.output.Width, m.output.Height
	port := m.port
	return func() tea.Msg {
		frame, err := port.Render(context.Background(), w, h)
		return FrameMsg{Generation: gen, Content: frame.Content, Err: err}
	}
}
