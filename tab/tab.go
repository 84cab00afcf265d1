// Package tab binds a timer coordinator to a terminal surface. Each tab
// is one bubbletea program; terminal focus drives visibility, so a
// blurred tab stops scheduling display ticks while the background
// timekeeper keeps owning the clock.
package tab

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/kanbo-app/kanbo/coordinator"
	"github.com/kanbo-app/kanbo/internal/config"
	"github.com/kanbo-app/kanbo/internal/models"
)

type keymap struct {
	start key.Binding
	stop  key.Binding
	quit  key.Binding
}

var defaultKeymap = keymap{
	start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	stop: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "stop"),
	),
	quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type styles struct {
	elapsed lipgloss.Style
	task    lipgloss.Style
	hint    lipgloss.Style
	errMsg  lipgloss.Style
}

func newStyles() styles {
	return styles{
		elapsed: lipgloss.NewStyle().Bold(true),
		task:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		hint:    lipgloss.NewStyle().Faint(true),
		errMsg:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Tab is the bubbletea model for one timer surface.
type Tab struct {
	coord    *coordinator.Coordinator
	opts     *config.Config
	taskForm *huh.Form
	onStop   func(*models.TimeEntry)
	err      error
	lastErr  string
	styles   styles
	visible  bool
	quitting bool
}

type tickMsg time.Time

// New creates a tab bound to the given coordinator. When taskID is
// non-empty the timer is started for it immediately on Init.
func New(
	coord *coordinator.Coordinator,
	cfg *config.Config,
	taskID string,
) *Tab {
	t := &Tab{
		coord:   coord,
		opts:    cfg,
		styles:  newStyles(),
		visible: true,
	}

	if taskID != "" {
		t.setErr(coord.Start(context.Background(), taskID))
	}

	return t
}

// OnStop registers a callback invoked with each entry recorded from this
// tab, after the stop transition has committed.
func (t *Tab) OnStop(fn func(*models.TimeEntry)) {
	t.onStop = fn
}

func (t *Tab) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(ts time.Time) tea.Msg {
		return tickMsg(ts)
	})
}

// Run starts the tab's event loop, reporting terminal focus so hidden
// tabs suspend their ticking.
func (t *Tab) Run() error {
	_, err := tea.NewProgram(
		t,
		tea.WithReportFocus(),
	).Run()
	if err != nil {
		return err
	}

	return t.coord.Close()
}
