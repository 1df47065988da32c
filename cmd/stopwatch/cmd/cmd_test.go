package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/stopwatch/pkg/config"
)

// execute runs the root command with args after restoring every flag to
// its default, since cobra keeps flag values between executions.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"render", "1500000000"}, "1s500ms\n"},
		{[]string{"render", "0"}, "0s\n"},
		{[]string{"render", "-m", "numeric", "-f", "%.3f", "12.34s"}, "12.340\n"},
		{[]string{"render", "--format", "%H:%M:%s", "3723s"}, "1:2:3\n"},
		{[]string{"render", "2h", "90m"}, "2h\n1h30m\n"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderRejectsGarbage(t *testing.T) {
	_, _, err := execute(t, "render", "soon")
	assert.Error(t, err)
}

func TestRenderUnknownMode(t *testing.T) {
	_, _, err := execute(t, "render", "--mode", "sundial", "1")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestEnvironmentSelectsPolicy(t *testing.T) {
	t.Setenv("STOPWATCH_TIMER_MODE", "numeric")
	t.Setenv("STOPWATCH_TIMER_FORMAT", ".2")

	out, _, err := execute(t, "render", "1250ms")
	require.NoError(t, err)
	assert.Equal(t, "1.25\n", out)

	out, _, err = execute(t, "render", "--mode", "human", "--format", "", "1250ms")
	require.NoError(t, err)
	assert.Equal(t, "1s250ms\n", out, "flags override the environment")
}

func TestConfigFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timer:\n  mode: numeric\n  format: \"%.1f\"\n"), 0o600))

	out, _, err := execute(t, "--config", path, "render", "2500ms")
	require.NoError(t, err)
	assert.Equal(t, "2.5\n", out)
}

func TestConfigShow(t *testing.T) {
	out, _, err := execute(t, "config", "show", "--mode", "numeric")
	require.NoError(t, err)

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "numeric", shown.Timer.Mode)

	out, _, err = execute(t, "config", "show", "-o", "json")
	require.NoError(t, err)
	var asJSON map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &asJSON))
	assert.Equal(t, "json", asJSON["output"])
}

func TestSysinfo(t *testing.T) {
	out, _, err := execute(t, "sysinfo", "-o", "json")
	require.NoError(t, err)

	var host map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &host))
	assert.Equal(t, runtime.GOOS, host["os"])

	out, _, err = execute(t, "sysinfo")
	require.NoError(t, err)
	assert.Contains(t, out, runtime.GOARCH)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "stopwatch dev\n", out)
}

func TestRunText(t *testing.T) {
	requireShell(t)

	out, _, err := execute(t, "run", "-o", "text", "--label", "hello", "--", "sh", "-c", "echo hi")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hi", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "hello "), lines[1])
}

func TestRunRepeatJSONAndMetricsFile(t *testing.T) {
	requireShell(t)
	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")

	out, _, err := execute(t, "run", "-o", "json", "-n", "3", "-m", "numeric",
		"--metrics-file", metricsFile, "--", "true")
	require.NoError(t, err)

	var rep struct {
		Samples []struct {
			Label    string `json:"label"`
			ExitCode int    `json:"exit_code"`
		} `json:"samples"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Samples, 3)
	assert.Equal(t, "true", rep.Samples[0].Label)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stopwatch_runs_total{label="true",outcome="success"} 3`)
}

func TestRunReportsFailures(t *testing.T) {
	requireShell(t)

	out, _, err := execute(t, "run", "-o", "text", "--", "sh", "-c", "exit 4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 runs failed")
	assert.Contains(t, out, "exit status 4")
}

func TestRunRejectsBadRepeat(t *testing.T) {
	_, _, err := execute(t, "run", "-n", "0", "--", "true")
	assert.Error(t, err)
}

func TestWatchStopsAtTimeout(t *testing.T) {
	out, _, err := execute(t, "watch", "--tick", "5ms", "--timeout", "30ms", "-m", "numeric")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "timeout after "), lines[len(lines)-1])
}

func TestServe(t *testing.T) {
	requireShell(t)

	addrCh := make(chan net.Addr, 1)
	serveListening = func(a net.Addr) { addrCh <- a }
	defer func() { serveListening = nil }()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := execute(t, "serve", "--addr", "127.0.0.1:0", "--interval", "500ms",
			"--max-runs", "2", "--label", "ping", "--api-key", "t0ken", "--", "sh", "-c", "sleep 0.05")
		done <- result{out, err}
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start listening")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	uptime := func(key string) int {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/uptime", addr), nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusUnauthorized, uptime(""))
	assert.Equal(t, http.StatusOK, uptime("t0ken"))

	select {
	case r := <-done:
		require.NoError(t, r.err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after --max-runs")
	}
	http.DefaultClient.CloseIdleConnections()
}
