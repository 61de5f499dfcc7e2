package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/user/a11y-audit-service/internal/adapter/sqlite"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/usecase"
)

// runCLI executes the root command with captured output.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := execute(context.Background(), args)
	return code, stdout.String(), stderr.String()
}

// seedStore points the sqlite backend at a temp dir holding one saved batch.
func seedStore(t *testing.T) *entity.QueueState {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("A11Y_STORE_BACKEND", "sqlite")
	t.Setenv("A11Y_STORE_DIR", dir)

	db, err := sqlite.Open(context.Background(), dir)
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	urls := []string{"https://example.com/", "https://example.com/about"}
	state := entity.NewQueueState("batch-1", urls[0], entity.LevelAA, urls, now)
	state.Set(urls[0], entity.URLPassed, now.Add(time.Minute))
	require.NoError(t, sqlite.NewStateRepo(db).Save(context.Background(), state))
	return state
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"run", "resume", "states"} {
		assert.True(t, found[name], "subcommand %q not registered", name)
	}

	sub := map[string]bool{}
	for _, c := range statesCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["list"])
	assert.True(t, sub["show"])
}

func TestSetupReadsRootFlagsFromSubcommands(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentPreRunE)
	seedStore(t)

	code, _, stderr := runCLI(t, "--log-level", "debug", "states", "list", "-o", "json")
	require.Equal(t, exitOK, code, stderr)
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NotNil(t, log)

	code, _, stderr = runCLI(t, "states", "list", "--log-level", "error", "-o", "json")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestRunCommand_Flags(t *testing.T) {
	tests := []struct {
		name     string
		flagType string
	}{
		{"urls", "string"},
		{"homepage", "string"},
		{"level", "string"},
		{"concurrency", "int"},
		{"timeout", "duration"},
		{"retries", "int"},
		{"persist", "bool"},
		{"state-id", "string"},
		{"target", "int"},
	}
	for _, tt := range tests {
		f := runCmd.Flags().Lookup(tt.name)
		if !assert.NotNil(t, f, "flag %q", tt.name) {
			continue
		}
		assert.Equal(t, tt.flagType, f.Value.Type(), "flag %q", tt.name)
	}
}

func TestReadURLs(t *testing.T) {
	in := strings.NewReader(`
# shop pages
https://shop.example.com/

  https://shop.example.com/cart
`)
	urls, err := readURLs(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com/", "https://shop.example.com/cart"}, urls)

	_, err = readURLs(strings.NewReader("https://ok.example.com/\nftp://files.example.com/\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFormatEvent(t *testing.T) {
	ev := usecase.ProgressEvent{URL: "https://example.com/a", Status: entity.URLPassed, Attempt: 1, Processed: 3, Total: 5}
	assert.Equal(t, " [3/5] passed https://example.com/a", formatEvent(ev))

	ev.Attempt = 2
	ev.Status = entity.URLInProgress
	assert.Contains(t, formatEvent(ev), "(attempt 2)")

	long := "https://example.com/" + strings.Repeat("x", 100)
	assert.Len(t, shortenURL(long), maxSpinnerURL)
	assert.True(t, strings.HasSuffix(shortenURL(long), "..."))
}

func TestUsageErrorsExitTwo(t *testing.T) {
	t.Setenv("A11Y_STORE_DIR", t.TempDir())
	missing := filepath.Join(t.TempDir(), "missing.txt")

	bad := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("not a url\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"run", "--nope"}},
		{"missing urls flag", []string{"run"}},
		{"unreadable list", []string{"run", "--urls", missing}},
		{"invalid url in list", []string{"run", "--urls", bad}},
		{"resume without id", []string{"resume"}},
		{"bad log level", []string{"--log-level", "loud", "states", "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code, stderr)
		})
	}
}

func TestInvalidConfigExitsTwo(t *testing.T) {
	t.Setenv("A11Y_AUDIT_CONCURRENCY", "0")
	code, _, stderr := runCLI(t, "--log-level", "info", "states", "list", "-o", "yaml")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "concurrency")
}

func TestStatesList(t *testing.T) {
	seedStore(t)

	code, stdout, stderr := runCLI(t, "--log-level", "warn", "states", "list", "-o", "json")
	require.Equal(t, exitOK, code, stderr)

	var list []entity.StateSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "batch-1", list[0].ID)
	assert.Equal(t, 2, list[0].Total)
	assert.Equal(t, 1, list[0].Passed)
	assert.Equal(t, 1, list[0].Pending)
}

func TestStatesShow(t *testing.T) {
	state := seedStore(t)

	code, stdout, stderr := runCLI(t, "--log-level", "warn", "states", "show", "batch-1", "-o", "yaml")
	require.Equal(t, exitOK, code, stderr)

	var got entity.QueueState
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, state.ID, got.ID)
	assert.Equal(t, entity.LevelAA, got.Level)
	assert.Equal(t, state.Order, got.Order)
	assert.Equal(t, entity.URLPassed, got.URLs["https://example.com/"])
	assert.Equal(t, entity.URLPending, got.URLs["https://example.com/about"])
}

func TestStatesShowUnknown(t *testing.T) {
	seedStore(t)
	code, _, stderr := runCLI(t, "--log-level", "warn", "states", "show", "nope", "-o", "yaml")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "nope")
}

func TestStatesShowRejectsUnknownFormat(t *testing.T) {
	seedStore(t)
	code, _, _ := runCLI(t, "--log-level", "warn", "states", "show", "batch-1", "-o", "xml")
	assert.Equal(t, exitUsage, code)
}

func TestExitErrorWithoutCausePrintsNothing(t *testing.T) {
	err := &exitError{code: exitCrashed}
	assert.Equal(t, "exit status 1", err.Error())
	assert.Nil(t, err.Unwrap())
}
