package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/taskboard/internal/actions"
	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/clock"
	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/kanban"
	"github.com/aristath/taskboard/internal/repository"
	"github.com/aristath/taskboard/internal/tui"
)

func boardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the kanban board against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBoard(cmd.Context())
		},
	}
}

func (a *app) runBoard(ctx context.Context) error {
	user, err := a.cfg.Actor()
	if err != nil {
		return err
	}
	client, err := backend.New(backend.Config{Type: "http", ServerURL: a.cfg.ServerURL}, nil, a.logger)
	if err != nil {
		return err
	}

	// Create event bus
	bus := events.NewEventBus()
	defer func() {
		a.logger.Debug("event bus closed", "dropped", bus.Dropped())
		bus.Close()
	}()

	repo := repository.New(client,
		repository.WithPublisher(bus),
		repository.WithConcurrency(a.cfg.RefreshConcurrency),
	)
	if err := repo.Load(ctx); err != nil {
		return err
	}

	opts := []actions.Option{
		actions.WithLogger(a.logger),
		actions.WithPublisher(bus),
		actions.WithPolicy(a.cfg.Policy()),
	}
	dispatcher := actions.NewDispatcher(client, repo, user, opts...)
	reassign := actions.NewReassignmentManager(client, repo, user, opts...)
	board := kanban.NewController(repo, dispatcher,
		kanban.WithPublisher(bus),
		kanban.WithLogger(a.logger),
	)

	sched := clock.NewScheduler(a.logger)
	sched.Start()
	defer sched.Stop(2 * time.Second)
	timer := clock.NewLiveTimer(sched,
		clock.WithInterval(a.cfg.TickInterval.Duration),
		clock.WithPublisher(bus),
	)
	followCtx, stopFollow := context.WithCancel(ctx)
	defer stopFollow()
	go timer.Follow(followCtx, bus.Subscribe(events.TopicTask, events.DefaultBufferSize))

	model := tui.New(ctx, tui.Deps{
		Repo:       repo,
		Board:      board,
		Dispatcher: dispatcher,
		Reassign:   reassign,
		Timer:      timer,
		Bus:        bus,
		Logger:     a.logger,
	})

	// Start Bubble Tea program in a goroutine so we can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q')
		return err
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		p.Quit()

		// Wait for TUI to exit with timeout
		select {
		case err := <-errChan:
			return err
		case <-time.After(10 * time.Second):
			a.logger.Warn("shutdown timeout exceeded, forcing exit")
			return nil
		}
	}
}
