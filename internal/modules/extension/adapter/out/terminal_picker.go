package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	extensionout "dashext/internal/modules/extension/port/out"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

const defaultTTY = "/dev/tty"

// TerminalPicker presents an archive chooser on the controlling terminal.
// The caller must have released the terminal before Pick is called.
type TerminalPicker struct {
	startDir string
	ttyPath  string
}

func NewTerminalPicker(startDir string) extensionout.Picker {
	return &TerminalPicker{startDir: startDir, ttyPath: defaultTTY}
}

func (p *TerminalPicker) Pick(ctx context.Context) (string, bool, error) {
	tty, err := os.OpenFile(p.ttyPath, os.O_RDWR, 0)
	if err != nil {
		return "", false, fmt.Errorf("%w: open terminal for file picker: %v", apperrors.ErrFilesystemFailure, err)
	}
	defer tty.Close()

	program := tea.NewProgram(
		newPickerModel(p.startDir),
		tea.WithInput(tty),
		tea.WithOutput(tty),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if !errors.Is(err, tea.ErrProgramKilled) {
			return "", false, fmt.Errorf("run file picker: %w", err)
		}
	}
	model, ok := final.(pickerModel)
	if !ok || !model.chosen {
		return "", false, nil
	}
	picked, err := checkPicked(model.path)
	if err != nil {
		return "", false, err
	}
	return picked, true, nil
}

// checkPicked turns the picker's choice into an absolute path to a regular
// archive file.
func checkPicked(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve picked path: %v", apperrors.ErrInvalidInput, err)
	}
	if !safepath.IsAcceptedArchive(abs) {
		return "", fmt.Errorf("%w: %s is not a .tar, .tar.gz or .tgz file", apperrors.ErrInvalidArchive, filepath.Base(abs))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: stat picked path: %v", apperrors.ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", apperrors.ErrInvalidArchive, abs)
	}
	return abs, nil
}

type pickerModel struct {
	fp     filepicker.Model
	chosen bool
	path   string
	notice string
}

var (
	pickerTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#b4befe"))
	pickerMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	pickerNotice = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab387"))
)

func newPickerModel(startDir string) pickerModel {
	fp := filepicker.New()
	fp.AllowedTypes = safepath.AcceptedSuffixes()
	fp.CurrentDirectory = startDir
	if fp.CurrentDirectory == "" {
		if home, err := os.UserHomeDir(); err == nil {
			fp.CurrentDirectory = home
		} else {
			fp.CurrentDirectory = "."
		}
	}
	fp.ShowHidden = false
	fp.ShowSize = true
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.AutoHeight = false
	fp.Height = 15
	fp.KeyMap.Back = key.NewBinding(key.WithKeys("h", "backspace", "left"), key.WithHelp("h", "back"))
	return pickerModel{fp: fp}
}

func (m pickerModel) Init() tea.Cmd {
	return m.fp.Init()
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "ctrl+c", "esc", "q":
			m.chosen = false
			return m, tea.Quit
		}
	}
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.fp.Height = max(size.Height-6, 5)
	}

	var cmd tea.Cmd
	m.fp, cmd = m.fp.Update(msg)
	if ok, path := m.fp.DidSelectFile(msg); ok {
		m.chosen = true
		m.path = path
		return m, tea.Quit
	}
	if ok, path := m.fp.DidSelectDisabledFile(msg); ok {
		m.notice = filepath.Base(path) + " is not an accepted archive"
	}
	return m, cmd
}

func (m pickerModel) View() string {
	out := pickerTitle.Render("Select an extension archive") + "\n"
	out += pickerMuted.Render(m.fp.CurrentDirectory) + "\n\n"
	out += m.fp.View() + "\n"
	if m.notice != "" {
		out += pickerNotice.Render(m.notice) + "\n"
	}
	out += pickerMuted.Render("enter select • h back • esc/q cancel")
	return out
}
