// Package tui renders a live status view of a coordination workload.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
)

// App wraps the Bubbletea program.
type App struct {
	bus     *event.Bus
	model   Model
	options []tea.ProgramOption
}

// New creates an App that mirrors events published on bus.
func New(bus *event.Bus, title string, opts ...tea.ProgramOption) *App {
	return &App{
		bus:     bus,
		model:   NewModel(title),
		options: opts,
	}
}

// Run starts the program, runs work alongside it and returns work's error
// once both have finished. Quitting the view cancels work's context.
func (a *App) Run(ctx context.Context, work func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(a.model, append([]tea.ProgramOption{tea.WithContext(ctx)}, a.options...)...)

	subID := a.bus.SubscribeAll(func(ev event.Event) {
		program.Send(eventMsg{event: ev})
	})
	defer a.bus.Unsubscribe(subID)

	workErr := make(chan error, 1)
	go func() {
		err := work(ctx)
		workErr <- err
		program.Send(doneMsg{err: err})
	}()

	_, runErr := program.Run()
	// The view may have been quit early; stop the workload and wait for it.
	cancel()
	if err := <-workErr; err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Wrap(runErr, "status view")
	}
	return nil
}
