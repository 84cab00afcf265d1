package app

import (
	"github.com/urfave/cli/v2"
)

var (
	sinceFlag = &cli.StringFlag{
		Name:    "since",
		Aliases: []string{"s"},
		Usage:   "List entries recorded since the given time (e.g. 'yesterday', '3 days ago')",
		Value:   "7 days ago",
	}

	taskFlag = &cli.StringSliceFlag{
		Name:    "task",
		Aliases: []string{"t"},
		Usage:   "Restrict entries to the given task ids",
	}

	disableNotificationFlag = &cli.BoolFlag{
		Name:  "disable-notification",
		Usage: "Disable desktop notifications",
	}
)
