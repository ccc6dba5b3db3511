package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/folderscrape/internal/domain"
)

type cliEnv struct {
	root   string
	cwd    string
	srv    *httptest.Server
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newCLIEnv 准备一个 base 目录（内含 folderscrape.toml）与一个假的元数据服务。
func newCLIEnv(t *testing.T, handler http.Handler, extraConfig string) *cliEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	cfg := fmt.Sprintf("service_url = %q\nlog_format = \"json\"\nlog_level = \"error\"\n%s", srv.URL, extraConfig)
	require.NoError(t, os.WriteFile(filepath.Join(root, "folderscrape.toml"), []byte(cfg), 0o644))

	return &cliEnv{
		root:   root,
		cwd:    t.TempDir(),
		srv:    srv,
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
}

func (e *cliEnv) exec(args ...string) int {
	e.stdout.Reset()
	e.stderr.Reset()
	c := newCLI(e.stdout, e.stderr)
	c.getwd = func() (string, error) { return e.cwd, nil }
	c.progress = func() (io.Writer, bool) { return nil, false }
	return execute(context.Background(), c, args)
}

func (e *cliEnv) report(t *testing.T) domain.RunReport {
	t.Helper()
	var rr domain.RunReport
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &rr), "stdout 必须是单个 RunReport JSON：%q", e.stdout.String())
	return rr
}

func metadataService(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/movies/Getchu/54321", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		fmt.Fprintf(w, `{"data":{"number":"GETCHU-54321","label":"LabelX","title":"TitleY",
"cover_url":%q,"genres":["Drama"],"release_date":"2022-01-01T00:00:00"}}`, base+"/img/c.jpg")
	})
	mux.HandleFunc("/v1/movies/Getchu/500", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	})
	return mux
}

func TestCLI_DryRun_StdoutIsSingleJSONAndNothingWritten(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item54321"), 0o755))

	code := env.exec("run", env.root)
	require.Equal(t, 0, code, "stderr=%s", env.stderr.String())

	rr := env.report(t)
	assert.True(t, rr.DryRun)
	assert.Equal(t, "getchu", rr.Provider)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusProcessed, rr.Items[0].Status)
	assert.Equal(t, "[GETCHU-54321][LabelX]TitleY", rr.Items[0].NewName)
	assert.Contains(t, env.stderr.String(), "完成：processed=1")

	assert.DirExists(t, filepath.Join(env.root, "item54321"))
	assert.NoFileExists(t, filepath.Join(env.root, "item54321", "movie.nfo"))
	assert.NoFileExists(t, filepath.Join(env.root, LockFileName), "dry-run 不应创建锁文件")
}

func TestCLI_Apply_RenamesAndWritesReportFile(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item54321"), 0o755))
	reportPath := filepath.Join(env.cwd, "out", "report.json")

	code := env.exec("run", env.root, "--apply", "--report", reportPath)
	require.Equal(t, 0, code, "stderr=%s", env.stderr.String())

	final := filepath.Join(env.root, "[GETCHU-54321][LabelX]TitleY")
	assert.FileExists(t, filepath.Join(final, "movie.nfo"))
	assert.FileExists(t, filepath.Join(final, "poster.jpg"))

	b, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var onDisk domain.RunReport
	require.NoError(t, json.Unmarshal(b, &onDisk))
	assert.False(t, onDisk.DryRun)
	assert.Equal(t, env.report(t).RunID, onDisk.RunID)
}

func TestCLI_ApplyFalseOverridesConfig(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "apply = true\n")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item54321"), 0o755))

	code := env.exec("run", env.root, "--apply=false")
	require.Equal(t, 0, code, "stderr=%s", env.stderr.String())
	assert.True(t, env.report(t).DryRun)
	assert.DirExists(t, filepath.Join(env.root, "item54321"))
}

func TestCLI_FailedItemExitsOne_UnmatchedDoesNot(t *testing.T) {
	// 关闭猜测：否则 getchu 会把 HTTP 500 降级为猜测图片的 processed。
	env := newCLIEnv(t, metadataService(t), "guess_on_absent = false\n")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "no id here"), 0o755))

	require.Equal(t, 0, env.exec("run", env.root), "unmatched 不应影响退出码")
	assert.Equal(t, 1, env.report(t).Summary.Unmatched)

	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item500"), 0o755))
	require.Equal(t, 1, env.exec("run", env.root))
	rr := env.report(t)
	assert.Equal(t, 1, rr.Summary.Failed)
	assert.Equal(t, 1, rr.Summary.Unmatched)
}

func TestCLI_ConfigNotFound_ReportsAndExitsOne(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")

	code := env.exec("run")
	require.Equal(t, 1, code)

	rr := env.report(t)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusFailed, rr.Items[0].Status)
	assert.Equal(t, domain.ErrCodeConfigNotFound, rr.Items[0].ErrorCode)
	assert.Equal(t, 1, rr.Summary.Failed)
}

func TestCLI_ExplicitConfigFile(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item54321"), 0o755))
	cfg := filepath.Join(env.cwd, "custom.toml")
	body := fmt.Sprintf("path = %q\nservice_url = %q\nlog_format = \"json\"\n", env.root, env.srv.URL)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))

	code := env.exec("run", "--config", cfg)
	require.Equal(t, 0, code, "stderr=%s", env.stderr.String())
	assert.Equal(t, env.root, env.report(t).Path)
}

func TestCLI_UsageErrorsExitTwo(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")

	cases := [][]string{
		{"run", "--nope"},
		{"run", "a", "b"},
		{"run", env.root, "--provider", "javdb"},
	}
	for _, args := range cases {
		assert.Equal(t, 2, env.exec(args...), "args=%v", args)
		assert.Contains(t, env.stderr.String(), "参数错误")
		assert.Empty(t, env.stdout.String(), "参数错误不应输出 RunReport")
	}
}

func TestCLI_HelpExitsZero(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")
	assert.Equal(t, 0, env.exec("run", "--help"))
	assert.Contains(t, env.stdout.String(), "--provider")
}

func TestCLI_LockHeldByAnotherRun(t *testing.T) {
	env := newCLIEnv(t, metadataService(t), "")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "item54321"), 0o755))

	other := flock.New(filepath.Join(env.root, LockFileName))
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = other.Unlock() })

	code := env.exec("run", env.root, "--apply")
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "另一个 folderscrape")
	assert.DirExists(t, filepath.Join(env.root, "item54321"), "拿不到锁时不应处理任何目录")
}
