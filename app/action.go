package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/markusmobius/go-dateparser"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/kanbo-app/kanbo/broadcast"
	"github.com/kanbo-app/kanbo/coordinator"
	"github.com/kanbo-app/kanbo/internal/config"
	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/internal/timeutil"
	"github.com/kanbo-app/kanbo/internal/ui"
	"github.com/kanbo-app/kanbo/keeper"
	"github.com/kanbo-app/kanbo/store"
	"github.com/kanbo-app/kanbo/tab"
)

var errTaskRequired = errors.New("a task id is required")

// core bundles everything a timer surface needs.
type core struct {
	cfg    *config.Config
	db     *store.Client
	keeper *keeper.Keeper
	hub    *broadcast.Hub
	coord  *coordinator.Coordinator
}

func (c *core) close() {
	_ = c.coord.Close()
	c.hub.Close()
	c.keeper.Shutdown()
	_ = c.db.Close()
}

// setupCore loads configuration, opens the store, and wires a
// coordinator to a fresh timekeeper and broadcast hub. Coordinator
// creation runs the recovery path, so a timer left behind by a previous
// process is adopted (or evicted, if stale) here.
func setupCore(ctx *cli.Context) (*core, error) {
	cfg, err := config.New(config.WithViperConfig(config.ConfigFilePath()))
	if err != nil {
		return nil, err
	}

	ui.DarkTheme = cfg.Display.DarkTheme

	db, err := store.NewClient(config.DBFilePath())
	if err != nil {
		return nil, err
	}

	k := keeper.Start()
	hub := broadcast.NewHub()

	coord, err := coordinator.New(ctx.Context, db, k, hub, coordinator.Options{
		CheckpointInterval: cfg.Timer.CheckpointInterval,
		StaleAfter:         cfg.Timer.StaleAfter,
		KeeperTimeout:      cfg.Timer.KeeperTimeout,
		StatusFilePath:     config.StatusFilePath(),
	})
	if err != nil {
		hub.Close()
		k.Shutdown()
		_ = db.Close()

		return nil, err
	}

	return &core{
		cfg:    cfg,
		db:     db,
		keeper: k,
		hub:    hub,
		coord:  coord,
	}, nil
}

// runTab opens the tab UI bound to the given core.
func runTab(ctx *cli.Context, c *core, taskID string) error {
	t := tab.New(c.coord, c.cfg, taskID)

	t.OnStop(func(entry *models.TimeEntry) {
		notifyStopped(ctx, c.cfg, entry)
		runStopCmd(c.cfg)
	})

	return t.Run()
}

// defaultAction opens a timer tab, optionally starting a timer for the
// task given as the first argument.
func defaultAction(ctx *cli.Context) error {
	c, err := setupCore(ctx)
	if err != nil {
		return err
	}

	defer c.close()

	return runTab(ctx, c, ctx.Args().First())
}

// startAction starts a timer without opening the tab UI. The record
// persists after this process exits and is re-adopted on the next mount.
func startAction(ctx *cli.Context) error {
	taskID := ctx.Args().First()
	if taskID == "" {
		return errTaskRequired
	}

	c, err := setupCore(ctx)
	if err != nil {
		return err
	}

	defer c.close()

	if err := c.coord.Start(ctx.Context, taskID); err != nil {
		return err
	}

	pterm.Success.Printfln("Timer started for task %s", ui.Green(taskID))

	notifyStarted(ctx, c.cfg, taskID)

	return nil
}

// stopAction stops the running timer (adopted through recovery) and
// records a time entry.
func stopAction(ctx *cli.Context) error {
	c, err := setupCore(ctx)
	if err != nil {
		return err
	}

	defer c.close()

	entry, err := c.coord.Stop(ctx.Context)
	if err != nil {
		return err
	}

	if entry == nil {
		pterm.Info.Println("No timer is running")
		return nil
	}

	hrs, mins := timeutil.MinsToHoursAndMins(entry.DurationMinutes)

	pterm.Success.Printfln(
		"Recorded %s for task %s",
		ui.Highlight(fmt.Sprintf("%dh %dm", hrs, mins)),
		ui.Green(entry.TaskID),
	)

	notifyStopped(ctx, c.cfg, entry)
	runStopCmd(c.cfg)

	return nil
}

// statusAction reports the timer state. When another kanbo instance
// holds the database lock, the advisory status file it maintains is read
// instead.
func statusAction(ctx *cli.Context) error {
	cfg, err := config.New(config.WithViperConfig(config.ConfigFilePath()))
	if err != nil {
		return err
	}

	var state *models.TimerState

	db, err := store.NewClient(config.DBFilePath())
	if err == nil {
		defer db.Close()

		state, err = db.GetActiveTimer()
		if err != nil {
			return err
		}
	} else {
		// Database is locked by a running instance; its status file has
		// the latest checkpoint.
		state, err = coordinator.ReadStatusFile(config.StatusFilePath())
		if err != nil {
			return err
		}
	}

	now := time.Now()

	if state == nil || state.Stale(now, cfg.Timer.StaleAfter) {
		pterm.Info.Println("No timer is running")
		return nil
	}

	elapsed := int(now.Sub(state.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	mins, secs := timeutil.SecsToMinsAndSecs(elapsed)
	hrs, mins := timeutil.MinsToHoursAndMins(mins)

	pterm.Printfln(
		"[%s] %s — %02d:%02d:%02d",
		state.Status,
		ui.Green(state.TaskID),
		hrs, mins, secs,
	)

	return nil
}

// resumeAction re-adopts a non-stale timer record and opens the tab UI
// bound to it. Recovery itself happens during coordinator creation.
func resumeAction(ctx *cli.Context) error {
	c, err := setupCore(ctx)
	if err != nil {
		return err
	}

	defer c.close()

	status := c.coord.GetStatus()
	if status.ActiveTaskID == "" {
		pterm.Info.Println("No timer to resume")
		return nil
	}

	pterm.Info.Printfln("Resuming timer for task %s", ui.Green(status.ActiveTaskID))

	return runTab(ctx, c, "")
}

// entriesAction lists recorded time entries.
func entriesAction(ctx *cli.Context) error {
	cfg, err := config.New(config.WithViperConfig(config.ConfigFilePath()))
	if err != nil {
		return err
	}

	now := time.Now()

	parsed, err := dateparser.Parse(&dateparser.Configuration{
		CurrentTime: now,
	}, ctx.String("since"))
	if err != nil {
		return fmt.Errorf("unable to parse --since value: %w", err)
	}

	db, err := store.NewClient(config.DBFilePath())
	if err != nil {
		return err
	}

	defer db.Close()

	entries, err := db.GetEntries(
		timeutil.RoundToStart(parsed.Time),
		now,
		ctx.StringSlice("task"),
	)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		pterm.Info.Println("No entries found for the specified period")
		return nil
	}

	printEntries(entries, cfg)

	return nil
}

func printEntries(entries []models.TimeEntry, cfg *config.Config) {
	timeFormat := "Jan 02 03:04 PM"
	if cfg.Display.TwentyFourHour {
		timeFormat = "Jan 02 15:04"
	}

	tableBody := make([][]string, len(entries))

	for i := range entries {
		e := entries[i]

		hrs, mins := timeutil.MinsToHoursAndMins(e.DurationMinutes)

		kind := ""
		if e.IsManual {
			kind = "manual"
		}

		tableBody[i] = []string{
			fmt.Sprintf("%d", i+1),
			e.TaskID,
			e.StartTime.Format(timeFormat),
			e.EndTime.Format(timeFormat),
			fmt.Sprintf("%dh %02dm", hrs, mins),
			kind,
		}
	}

	tableBody = append([][]string{
		{"#", "TASK", "STARTED", "ENDED", "DURATION", ""},
	}, tableBody...)

	ui.PrintTable(tableBody, os.Stdout)
}
