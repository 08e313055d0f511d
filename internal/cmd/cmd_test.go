package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/executor"
	"github.com/Iron-Ham/opcoord/internal/lifecycle"
	"github.com/Iron-Ham/opcoord/internal/operation"
	"github.com/Iron-Ham/opcoord/internal/scenario"
	"github.com/Iron-Ham/opcoord/internal/testutil"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "opcoord" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "opcoord")
	}

	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range []string{"run", "config"} {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	out, err := executeCommand(t, rootCmd, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigShow(t *testing.T) {
	out, err := executeCommand(t, rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, out)
	}
	for _, want := range []string{"max_concurrent: 4", "hide_delay_ms: 1000", "grant_budget_ms: 30000"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "scenario.yaml", `
name: smoke
operations:
  - {name: first, duration: 5ms, exclusive: [AlertPresentation], observe: [indicator]}
  - {name: second, duration: 5ms, exclusive: [AlertPresentation], fail: boom}
  - name: parent
    duration: 5ms
    observe: [guard]
    children:
      - {name: child, duration: 1ms}
environment:
  - {at: 1ms, transition: background}
  - {at: 3ms, transition: foreground}
`)

	out, err := executeCommand(t, rootCmd, "run", "--tui", "never", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"first", "second", "boom", "child", "smoke: 4 operations", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommandBadScenario(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "bad.yaml", "operations: []\n")

	if _, err := executeCommand(t, rootCmd, "run", "--tui", "never", path); err == nil {
		t.Fatal("run succeeded with an empty scenario")
	}
	if _, err := executeCommand(t, rootCmd, "run", "--tui", "never", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("run succeeded with a missing scenario")
	}
}

func TestUseTUI(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tests := []struct {
		mode string
		want bool
	}{
		{"always", true},
		{"never", false},
		{"auto", false}, // a regular file is not a terminal
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			if got := useTUI(tt.mode, f); got != tt.want {
				t.Errorf("useTUI(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	res := &scenario.Result{
		Name:    "demo",
		Elapsed: 1500 * time.Millisecond,
		Operations: []executor.Snapshot{
			{ID: "op-1", Name: "parent", State: operation.StateFinished, Elapsed: 20 * time.Millisecond},
			{ID: "op-2", Name: "child", ParentID: "op-1", State: operation.StateCancelled,
				Errors: []error{errors.ErrCancelled}},
			{ID: "op-3", Name: "misuse", State: operation.StateFinished,
				Errors: []error{errors.NewContractError("finish called twice", errors.ErrAlreadyFinished)}},
		},
		Grants: lifecycle.EnvironmentStats{Begun: 2, Ended: 2, Expired: 1},
	}

	var buf bytes.Buffer
	if err := printSummary(&buf, res); err != nil {
		t.Fatalf("printSummary failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"parent", "child", "cancelled", "operation cancelled", "succeeded", "contract",
		"demo: 3 operations in 1.5s, 2 failed", "Errors by class: 1 cancelled, 1 contract",
		"Grants: 2 begun, 2 ended, 1 expired"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
