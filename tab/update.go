package tab

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/davecgh/go-spew/spew"

	"github.com/kanbo-app/kanbo/internal/models"
)

// newTaskForm prompts for the task to time. Task ids are opaque strings
// owned by the board layer; nothing is validated here.
func newTaskForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("task_id").
				Title("Which task are you working on?").
				Placeholder("task id"),
		),
	)
}

func (t *Tab) handleTick() (tea.Model, tea.Cmd) {
	if !t.visible || t.quitting {
		return t, nil
	}

	return t, tick()
}

func (t *Tab) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	status := t.coord.GetStatus()

	switch {
	case key.Matches(msg, defaultKeymap.quit):
		t.quitting = true

		return t, tea.Batch(tea.ClearScreen, tea.Quit)

	case key.Matches(msg, defaultKeymap.start):
		// Only from idle; paused records disable the controls.
		if status.Status == "" {
			t.taskForm = newTaskForm()

			return t, t.taskForm.Init()
		}

		return t, nil

	case key.Matches(msg, defaultKeymap.stop):
		// Paused records disable the controls.
		if status.Status != models.StatusActive {
			return t, nil
		}

		entry, err := t.coord.Stop(context.Background())
		t.setErr(err)

		if err == nil && entry != nil && t.onStop != nil {
			t.onStop(entry)
		}

		return t, nil
	}

	return t, nil
}

func (t *Tab) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if t.taskForm != nil {
		form, cmd := t.taskForm.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			t.taskForm = f

			switch t.taskForm.State {
			case huh.StateCompleted:
				taskID := t.taskForm.GetString("task_id")
				t.taskForm = nil

				if taskID != "" {
					t.setErr(t.coord.Start(context.Background(), taskID))
				}

				return t, tick()
			case huh.StateAborted:
				t.taskForm = nil

				return t, tick()
			}

			return t, cmd
		}
	}

	switch msg := msg.(type) {
	case tickMsg:
		return t.handleTick()

	case tea.KeyMsg:
		return t.handleKeyPress(msg)

	case tea.FocusMsg:
		t.visible = true
		t.coord.SetVisible(context.Background(), true)

		return t, tick()

	case tea.BlurMsg:
		t.visible = false
		t.coord.SetVisible(context.Background(), false)

		return t, nil

	default:
		slog.Debug(spew.Sdump(msg))
	}

	return t, nil
}

// setErr records a failed transition for display. The coordinator never
// advances past a failed transition, so the view keeps showing the
// pre-transition state alongside the error.
func (t *Tab) setErr(err error) {
	t.err = err

	if err != nil {
		t.lastErr = err.Error()
	} else {
		t.lastErr = ""
	}
}
