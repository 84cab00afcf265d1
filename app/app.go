// Package app assembles the kanbo command-line interface.
package app

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/kanbo-app/kanbo/internal/config"
)

const (
	envNoColor      = "NO_COLOR"
	envKanboNoColor = "KANBO_NO_COLOR"
)

// disableStyling disables all styling provided by pterm.
func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
	pterm.Debug.Prefix.Text = ""
	pterm.Info.Prefix.Text = ""
	pterm.Success.Prefix.Text = ""
	pterm.Warning.Prefix.Text = ""
	pterm.Error.Prefix.Text = ""
	pterm.Fatal.Prefix.Text = ""
}

// Get retrieves the kanbo app instance.
func Get() *cli.App {
	kanboApp := &cli.App{
		Name: "kanbo",
		Usage: `
		Kanbo is a personal kanban board with a built-in time tracker. Running it
		without a command opens a timer tab for a task; every open tab stays in
		sync with the others and with the background timekeeper.`,
		UsageText:            "[COMMAND] [OPTIONS] [TASK_ID]",
		Version:              config.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Start a timer for a task without opening the tab UI",
				ArgsUsage: "TASK_ID",
				Action:    startAction,
				Flags:     []cli.Flag{disableNotificationFlag},
			},
			{
				Name:   "stop",
				Usage:  "Stop the running timer and record a time entry",
				Action: stopAction,
				Flags:  []cli.Flag{disableNotificationFlag},
			},
			{
				Name:   "status",
				Usage:  "Print the status of the timer",
				Action: statusAction,
			},
			{
				Name:   "resume",
				Usage:  "Re-adopt a timer left behind by a closed or crashed instance",
				Action: resumeAction,
			},
			{
				Name:  "entries",
				Usage: "List recorded time entries",
				Flags: []cli.Flag{
					sinceFlag,
					taskFlag,
				},
				Action: entriesAction,
			},
		},
		Flags: []cli.Flag{
			disableNotificationFlag,
		},
		Action: defaultAction,
		Before: beforeAction,
	}

	return kanboApp
}

func beforeAction(ctx *cli.Context) error {
	if _, ok := os.LookupEnv(envNoColor); ok {
		disableStyling()
	}

	if _, ok := os.LookupEnv(envKanboNoColor); ok {
		disableStyling()
	}

	config.InitializePaths()
	config.InitLogger()

	return nil
}
