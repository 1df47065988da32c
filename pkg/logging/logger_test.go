package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{" info ", INFO},
		{"warning", WARN},
		{"WARN", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"verbose", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN, false)
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.False(t, l.Enabled(INFO))
	assert.True(t, l.Enabled(ERROR))
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, true)
	l.SetOutput(&buf)

	l.WithField("label", "build").Info("run finished", map[string]interface{}{"exit_code": 0})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "build", entry["label"])
	assert.EqualValues(t, 0, entry["exit_code"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, true)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("plain")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(INFO, false)
	l.SetOutput(&buf)

	l.WithPrefix("[serve] ").Info("tick")
	assert.Contains(t, buf.String(), "[serve] tick")
}

func TestFatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(INFO, false)
	l.SetOutput(&buf)

	code := -1
	l.base.ExitFunc = func(c int) { code = c }
	l.Fatal("giving up")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "giving up")
}

func TestFileLoggerRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve", "serve.log")
	l, err := newFileLogger(path, nil, INFO, false)
	require.NoError(t, err)
	defer l.Close()

	rotated, err := l.RotateIfNeeded(1 << 20)
	require.NoError(t, err)
	assert.False(t, rotated)

	l.Info(strings.Repeat("x", 64))
	rotated, err = l.RotateIfNeeded(16)
	require.NoError(t, err)
	assert.True(t, rotated)

	l.Info("after rotation")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after rotation")
	assert.NotContains(t, string(data), strings.Repeat("x", 64))
}

func TestRotationKeepsLoggingWhenRenameFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.log")
	l, err := newFileLogger(path, nil, INFO, false)
	require.NoError(t, err)
	defer l.Close()

	renameFile = func(string, string) error { return errors.New("read-only directory") }
	defer func() { renameFile = os.Rename }()

	l.Info(strings.Repeat("x", 64))
	rotated, err := l.RotateIfNeeded(16)
	assert.False(t, rotated)
	assert.ErrorContains(t, err, "read-only directory")

	l.Info("still logging")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), strings.Repeat("x", 64))
	assert.Contains(t, string(data), "still logging")
}

func TestRotationKeepsLoggingWhenReopenFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.log")
	l, err := newFileLogger(path, nil, INFO, false)
	require.NoError(t, err)
	defer l.Close()

	open := openLogFile
	openLogFile = func(p string) (*os.File, error) {
		if p == path {
			return nil, errors.New("disk full")
		}
		return open(p)
	}
	defer func() { openLogFile = open }()

	l.Info(strings.Repeat("x", 64))
	rotated, err := l.RotateIfNeeded(16)
	assert.False(t, rotated)
	assert.ErrorContains(t, err, "disk full")

	l.Info("still logging")
	backups, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "still logging")
}

func TestStdoutLoggerHasNothingToRotate(t *testing.T) {
	l := NewLogger(INFO, false)
	rotated, err := l.RotateIfNeeded(0)
	assert.NoError(t, err)
	assert.False(t, rotated)
	assert.NoError(t, l.Close())
}

func TestGetLogPath(t *testing.T) {
	p := GetLogPath("stopwatch", "serve")
	assert.Equal(t, "serve.log", filepath.Base(p))
	assert.Equal(t, "stopwatch", filepath.Base(filepath.Dir(p)))

	p = GetLogPath("stopwatch", "")
	assert.Equal(t, "stopwatch.log", filepath.Base(p))
}
