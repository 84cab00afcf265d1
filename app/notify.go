package app

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/gen2brain/beeep"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v2"

	"github.com/kanbo-app/kanbo/internal/config"
	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/internal/timeutil"
)

func notificationsOn(ctx *cli.Context, cfg *config.Config) bool {
	return cfg.Notification.Enabled && !ctx.Bool("disable-notification")
}

// notifyStarted sends a desktop notification for a started timer.
// Best-effort, like the timekeeper: failures are logged, never surfaced.
func notifyStarted(ctx *cli.Context, cfg *config.Config, taskID string) {
	if !notificationsOn(ctx, cfg) {
		return
	}

	err := beeep.Notify(
		"Timer started",
		fmt.Sprintf("Now tracking time for %s", taskID),
		"",
	)
	if err != nil {
		slog.Warn("unable to display notification", slog.Any("error", err))
	}
}

// notifyStopped sends a desktop notification for a recorded entry.
func notifyStopped(ctx *cli.Context, cfg *config.Config, entry *models.TimeEntry) {
	if !notificationsOn(ctx, cfg) {
		return
	}

	hrs, mins := timeutil.MinsToHoursAndMins(entry.DurationMinutes)

	err := beeep.Notify(
		"Timer stopped",
		fmt.Sprintf("Recorded %dh %dm for %s", hrs, mins, entry.TaskID),
		"",
	)
	if err != nil {
		slog.Warn("unable to display notification", slog.Any("error", err))
	}
}

// runStopCmd executes the user's configured command after a stop.
func runStopCmd(cfg *config.Config) {
	if cfg.System.StopCmd == "" {
		return
	}

	cmdSlice, err := shellquote.Split(cfg.System.StopCmd)
	if err != nil {
		slog.Warn("unable to parse settings.cmd option", slog.Any("error", err))
		return
	}

	if len(cmdSlice) == 0 {
		return
	}

	cmd := exec.Command(cmdSlice[0], cmdSlice[1:]...)

	if err := cmd.Run(); err != nil {
		slog.Warn("settings.cmd failed", slog.Any("error", err))
	}
}
