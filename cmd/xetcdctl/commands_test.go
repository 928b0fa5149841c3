package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xetcdv2/pkg/storage/xetcdv2/xetcdv2test"
)

// runCLI 执行命令，返回退出码、stdout 和 stderr。
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runApp(context.Background(), append([]string{"xetcdctl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunApp_SetGet(t *testing.T) {
	srv := xetcdv2test.Run(t)

	code, stdout, stderr := runCLI(t, "-s", srv.URL(), "set", "--ttl", "10s", "/app/mode", "blue")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "blue\n", stdout)

	req, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "/v2/keys/app/mode", req.Path)
	assert.Equal(t, "10", req.Form.Get("ttl"))

	code, stdout, _ = runCLI(t, "-s", srv.URL(), "-r", "app", "get", "mode")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "blue\n", stdout)
}

func TestRunApp_ExitCodes(t *testing.T) {
	srv := xetcdv2test.Run(t)

	code, _, stderr := runCLI(t, "-s", srv.URL(), "get", "/missing")
	assert.Equal(t, exitKeyNotFound, code)
	assert.Contains(t, stderr, "Key not found")

	code, _, _ = runCLI(t, "-s", srv.URL(), "mk", "/k", "v")
	require.Equal(t, exitOK, code)
	code, _, _ = runCLI(t, "-s", srv.URL(), "mk", "/k", "v")
	assert.Equal(t, exitKeyExists, code)

	code, _, _ = runCLI(t, "-s", srv.URL(), "update", "/missing", "v")
	assert.Equal(t, exitKeyNotFound, code)

	code, _, stderr = runCLI(t, "-s", srv.URL(), "update", "--prev-value", "other", "/k", "v2")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "etcd error 101")
}

func TestRunApp_UsageErrors(t *testing.T) {
	srv := xetcdv2test.Run(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing argument", args: []string{"-s", srv.URL(), "get"}},
		{name: "too many arguments", args: []string{"-s", srv.URL(), "set", "a", "b", "c"}},
		{name: "unknown flag", args: []string{"--no-such-flag", "get", "a"}},
		{name: "missing required ttl", args: []string{"-s", srv.URL(), "updatedir", "/d"}},
		{name: "invalid server", args: []string{"-s", "127.0.0.1:4001", "get", "a"}},
		{name: "invalid log level", args: []string{"-s", srv.URL(), "--log-level", "loud", "get", "a"}},
		{name: "negative retries", args: []string{"-s", srv.URL(), "--retries", "-1", "get", "a"}},
		{name: "bad prev index", args: []string{"-s", srv.URL(), "update", "--prev-index", "0", "a", "b"}},
		{name: "missing config file", args: []string{"-c", filepath.Join(t.TempDir(), "nope.yaml"), "get", "a"}},
		{name: "discover without record", args: []string{"discover"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRunApp_Directories(t *testing.T) {
	srv := xetcdv2test.Run(t)
	s := []string{"-s", srv.URL(), "-r", "/app"}
	run := func(args ...string) (int, string) {
		code, stdout, stderr := runCLI(t, append(append([]string{}, s...), args...)...)
		require.NotEqual(t, exitUsage, code, stderr)
		return code, stdout
	}

	code, _ := run("mkdir", "/db")
	require.Equal(t, exitOK, code)
	code, _ = run("mkdir", "/db")
	assert.Equal(t, exitKeyExists, code)

	run("set", "/db/host", "10.0.0.1")
	run("set", "/db/port", "5432")
	run("set", "/mode", "blue")

	code, stdout := run("ls", "--recursive")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "/app\n/app/db\n/app/db/host\n/app/db/port\n/app/mode\n", stdout)

	code, stdout = run("tree", "--recursive")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "/app/db/host=10.0.0.1\n/app/db/port=5432\n/app/mode=blue\n", stdout)

	code, stdout = run("tree")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "/app/mode=blue\n", stdout)

	code, stdout = run("tree", "--recursive", "--key", "/app/db/port")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "/app/db/port=5432\n", stdout)

	code, _ = run("updatedir", "--ttl", "30s", "/db")
	assert.Equal(t, exitOK, code)

	code, _ = run("rmdir", "/db")
	assert.Equal(t, exitFailure, code, "non-empty directory")
	code, _ = run("rmdir", "--recursive", "/db")
	assert.Equal(t, exitOK, code)

	code, _ = run("rm", "/mode")
	assert.Equal(t, exitOK, code)
	code, _ = run("rm", "/mode")
	assert.Equal(t, exitKeyNotFound, code)
}

func TestRunApp_ReservedCharacterKey(t *testing.T) {
	srv := xetcdv2test.Run(t)

	code, _, stderr := runCLI(t, "-s", srv.URL(), "set", "/disk/100%", "full")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, _ := runCLI(t, "-s", srv.URL(), "get", "/disk/100%")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "full\n", stdout)
}

func TestRunApp_MkInOrder(t *testing.T) {
	srv := xetcdv2test.Run(t)

	code, stdout, stderr := runCLI(t, "-s", srv.URL(), "mk", "--in-order", "/queue", "job")
	require.Equal(t, exitOK, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "/queue/"), stdout)
}

func TestRunApp_Exists(t *testing.T) {
	srv := xetcdv2test.Run(t)
	runCLI(t, "-s", srv.URL(), "set", "/k", "v")

	code, stdout, _ := runCLI(t, "-s", srv.URL(), "exists", "/k")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "true\n", stdout)

	code, stdout, _ = runCLI(t, "-s", srv.URL(), "exists", "--dir", "/k")
	assert.Equal(t, exitFailure, code)
	assert.Equal(t, "false\n", stdout)

	code, _, _ = runCLI(t, "-s", srv.URL(), "exists", "/nope")
	assert.Equal(t, exitFailure, code)
}

func TestRunApp_VersionAndHealth(t *testing.T) {
	srv := xetcdv2test.Run(t)

	code, stdout, _ := runCLI(t, "-s", srv.URL(), "version")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "etcdserver:  "+xetcdv2test.DefaultServerVersion)
	assert.Contains(t, stdout, "etcdcluster: "+xetcdv2test.DefaultClusterVersion)

	code, stdout, _ = runCLI(t, "-s", srv.URL(), "health")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, srv.URL()+"\thealthy\t"+xetcdv2test.DefaultServerVersion)
}

func TestRunApp_HealthUnreachable(t *testing.T) {
	srv := xetcdv2test.New()
	url := srv.URL()
	srv.Close()

	code, stdout, _ := runCLI(t, "-s", url, "--timeout", "5s", "health")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout, url+"\tunhealthy")
}

func TestRunApp_BasicAuth(t *testing.T) {
	srv := xetcdv2test.Run(t)
	srv.RequireBasicAuth("root", "secret")

	code, _, _ := runCLI(t, "-s", srv.URL(), "set", "/k", "v")
	assert.Equal(t, exitFailure, code)

	code, _, stderr := runCLI(t, "-s", srv.URL(), "--user", "root", "--password", "secret", "set", "/k", "v")
	assert.Equal(t, exitOK, code, stderr)
}

func TestRunApp_ConfigFile(t *testing.T) {
	srv := xetcdv2test.Run(t)
	dir := t.TempDir()
	logFile := filepath.Join(dir, "xetcdctl.log")

	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, fmt.Appendf(nil, `
etcd:
  server: %s
  sandbox_root: /from-base
log:
  level: debug
  format: json
  file: %s
  rotation:
    max_size_mb: 1
`, srv.URL(), logFile), 0o600))
	override := filepath.Join(dir, "override.json")
	require.NoError(t, os.WriteFile(override, []byte(`{"etcd": {"sandbox_root": "/from-override"}}`), 0o600))

	code, _, stderr := runCLI(t, "-c", base, "-c", override, "set", "k", "v")
	require.Equal(t, exitOK, code, stderr)
	req, _ := srv.LastRequest()
	assert.Equal(t, "/v2/keys/from-override/k", req.Path)

	// 命令行覆盖配置文件
	code, _, _ = runCLI(t, "-c", base, "-r", "/from-flag", "set", "k", "v")
	require.Equal(t, exitOK, code)
	req, _ = srv.LastRequest()
	assert.Equal(t, "/v2/keys/from-flag/k", req.Path)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"etcd request"`)
}

func TestRunApp_ShowsVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, Version)
}

func TestRunApp_Timeout(t *testing.T) {
	srv := xetcdv2test.Run(t)
	code, _, stderr := runCLI(t, "-s", srv.URL(), "--timeout", "1ns", "get", "k")
	assert.Equal(t, exitFailure, code)
	assert.True(t, strings.Contains(stderr, "deadline") || strings.Contains(stderr, "timeout"), stderr)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitUsage, exitCode(newUsageError("bad")))
	assert.Equal(t, exitUsage, exitCode(errors.New(`flag provided but not defined: -x`)))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitFailure, exitCode(context.DeadlineExceeded))
}

func TestUsageError(t *testing.T) {
	err := newUsageError("need %d", 2)
	assert.Equal(t, "need 2", err.Error())
	var target *usageError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &target))
}

func TestExitError(t *testing.T) {
	err := &exitError{code: 3}
	assert.Empty(t, err.Error())
}

func TestDefaultAppConfig(t *testing.T) {
	cfg := defaultAppConfig()
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, defaultScheme, cfg.Scheme)
	assert.Equal(t, "warn", cfg.Log.Level)
	require.NotNil(t, cfg.Etcd.VerifySSLPeer)
	assert.True(t, *cfg.Etcd.VerifySSLPeer)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
