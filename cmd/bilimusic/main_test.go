package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/download"
)

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(cfg)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.DownloadDir = t.TempDir()
	cfg.LogLevel = "error"
	return cfg
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd(testConfig(t))

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "get", "validate", "library", "lyrics", "doctor"} {
		assert.Contains(t, names, want)
	}
}

func TestValidateCmd(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "validate", "https://www.bilibili.com/video/BV1xx411c7mD")
	require.NoError(t, err)
	assert.Contains(t, out, "valid    https://www.bilibili.com/video/BV1xx411c7mD")

	out, err = run(t, cfg, "validate", "https://example.com/watch", "https://b23.tv/abc123")
	assert.Error(t, err)
	assert.Contains(t, out, "invalid  https://example.com/watch")
}

func TestLibraryCmd(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DownloadDir, "Song.m4a"), []byte("audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DownloadDir, "Song.lrc"), []byte("[00:01.00]hi"), 0644))

	out, err := run(t, cfg, "library", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Song.m4a")
	assert.Contains(t, out, "unknown artist")

	out, err = run(t, cfg, "library", "rename", "Song.m4a", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.DownloadDir, "Renamed.m4a"), strings.TrimSpace(out))
	assert.FileExists(t, filepath.Join(cfg.DownloadDir, "Renamed.lrc"))

	_, err = run(t, cfg, "library", "mv", "Renamed.m4a", "album")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.DownloadDir, "album", "Renamed.m4a"))

	_, err = run(t, cfg, "library", "tag", "album/Renamed.m4a")
	assert.Error(t, err, "tag without flags")

	_, err = run(t, cfg, "library", "rm", "album/Renamed.m4a")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.DownloadDir, "album", "Renamed.m4a"))
	assert.NoFileExists(t, filepath.Join(cfg.DownloadDir, "album", "Renamed.lrc"))
}

func TestConsoleSink(t *testing.T) {
	var out bytes.Buffer
	sink := newConsoleSink(&out)
	ctx := context.Background()

	// A final event that arrives before expect still counts
	require.NoError(t, sink.Handle(ctx, download.Event{JobID: "job-b", Kind: download.EventStatus, State: download.StateFailed}))
	require.NoError(t, sink.Handle(ctx, download.Event{JobID: "job-b", Kind: download.EventError, State: download.StateFailed, Message: "video unavailable", Code: "PERMANENT_EXTRACTION"}))

	sink.expect([]download.JobID{"job-a", "job-b"})

	events := []download.Event{
		{JobID: "job-a", Kind: download.EventStatus, State: download.StateDownloading, Message: "downloading"},
		{JobID: "job-a", Kind: download.EventProgress, State: download.StateDownloading, Percent: 35},
		{JobID: "job-a", Kind: download.EventProgress, State: download.StateDownloading, Percent: 37},
		{JobID: "job-a", Kind: download.EventProgress, State: download.StateDownloading, Percent: 52},
		{JobID: "job-a", Kind: download.EventStatus, State: download.StateCompleted},
		{JobID: "job-a", Kind: download.EventFinished, State: download.StateCompleted, Percent: 100, Path: "/music/Song.mp3"},
	}
	for _, ev := range events {
		require.NoError(t, sink.Handle(ctx, ev))
	}

	select {
	case <-sink.done:
	default:
		t.Fatal("sink should be done once every job is final")
	}
	assert.Equal(t, 1, sink.failures())

	text := out.String()
	assert.Contains(t, text, "failed: video unavailable (PERMANENT_EXTRACTION)")
	assert.Contains(t, text, "[1/2] downloading")
	assert.Contains(t, text, "[1/2]  35%")
	assert.NotContains(t, text, " 37%")
	assert.Contains(t, text, "[1/2]  52%")
	assert.Contains(t, text, "[1/2] saved Song.mp3")
}
