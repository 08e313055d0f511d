package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/opcoord/internal/event"
)

func headlessOptions(out io.Writer) []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithInput(nil),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	}
}

func TestAppRunReturnsWorkResult(t *testing.T) {
	bus := event.NewBus()
	var out bytes.Buffer
	app := New(bus, "test", headlessOptions(&out)...)

	want := errors.New("workload failed")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := app.Run(ctx, func(context.Context) error {
		bus.Publish(event.NewOperationSubmittedEvent("op-1", "fetch", nil))
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Run() = %v, want %v", err, want)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after Run", bus.SubscriptionCount())
	}
}

func TestAppRunSuccess(t *testing.T) {
	bus := event.NewBus()
	var out bytes.Buffer
	app := New(bus, "test", headlessOptions(&out)...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Run(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}
