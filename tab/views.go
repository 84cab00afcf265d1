package tab

import (
	"fmt"
	"strings"

	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/internal/timeutil"
)

// formatElapsed renders elapsed seconds as "HH:MM:SS".
func formatElapsed(total int) string {
	mins, secs := timeutil.SecsToMinsAndSecs(total)
	hrs, mins := timeutil.MinsToHoursAndMins(mins)

	return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, secs)
}

func (t *Tab) View() string {
	if t.quitting {
		return ""
	}

	if t.taskForm != nil {
		return t.taskForm.View()
	}

	var s strings.Builder

	status := t.coord.GetStatus()

	switch {
	case status.Status == models.StatusPaused:
		s.WriteString(t.styles.task.Render(status.ActiveTaskID))
		s.WriteString("  ")
		s.WriteString(t.styles.hint.Render("[paused]"))
	case status.ActiveTaskID != "":
		elapsed := t.coord.GetElapsedSeconds()

		s.WriteString(t.styles.elapsed.Render(formatElapsed(elapsed)))
		s.WriteString("  ")
		s.WriteString(t.styles.task.Render(status.ActiveTaskID))
		s.WriteString("\n\n")
		s.WriteString(t.styles.hint.Render("enter: stop • q: quit"))
	default:
		s.WriteString(t.styles.hint.Render("No timer running"))
		s.WriteString("\n\n")
		s.WriteString(t.styles.hint.Render("s: start • q: quit"))
	}

	if t.lastErr != "" {
		s.WriteString("\n\n")
		s.WriteString(t.styles.errMsg.Render(t.lastErr))
	}

	s.WriteString("\n")

	return s.String()
}
