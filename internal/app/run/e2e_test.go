package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/folderscrape/internal/app"
	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/provider"
)

// fakeWeb 同时扮演元数据服务、目录站点与图片服务器，并记录每个 path 的请求次数。
type fakeWeb struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func newFakeWeb(pages map[string]string) *fakeWeb {
	return &fakeWeb{hits: map[string]int{}, pages: pages}
}

func (f *fakeWeb) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	if body, ok := f.pages[r.URL.Path]; ok {
		_, _ = w.Write([]byte(body))
		return
	}
	if strings.HasSuffix(r.URL.Path, ".jpg") || strings.HasSuffix(r.URL.Path, ".png") {
		_, _ = w.Write([]byte("img:" + r.URL.Path))
		return
	}
	http.NotFound(w, r)
}

func (f *fakeWeb) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// rewriteTransport 把所有请求改写到测试服务器（用于猜测的外部图片地址）。
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	r2.URL.Scheme = t.target.Scheme
	r2.URL.Host = t.target.Host
	r2.Host = t.target.Host
	return t.base.RoundTrip(r2)
}

func newEnv(t *testing.T, profile string, apply bool, pages map[string]string) (string, *fakeWeb, Runner) {
	t.Helper()
	web := newFakeWeb(pages)
	srv := httptest.NewServer(web)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	root := t.TempDir()
	eff := config.EffectiveConfig{
		Path:       root,
		Provider:   profile,
		Apply:      apply,
		Rename:     true,
		ServiceURL: srv.URL,
		SiteURL:    srv.URL,
	}
	reg, err := app.NewRegistry(eff)
	require.NoError(t, err)

	client := &http.Client{Transport: rewriteTransport{target: target, base: srv.Client().Transport}}
	return root, web, Runner{Config: eff, Registry: reg, HTTPClient: client}
}

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

const getchuDetail = `{"data":{"number":"GETCHU-54321","label":"LabelX","title":"Title/Y",
"cover_url":"http://x/c.jpg","preview_images":["http://x/p1.jpg"],"genres":["Drama"],
"release_date":"2022-01-01T00:00:00"}}`

func TestRun_GetchuEndToEnd(t *testing.T) {
	root, web, r := newEnv(t, "getchu", true, map[string]string{
		"/v1/movies/Getchu/54321": getchuDetail,
	})
	mkdir(t, root, "item54321")
	touch(t, filepath.Join(root, "notes.txt"))

	rr := r.Run(context.Background())

	require.Len(t, rr.Items, 1, "非目录条目不应出现在 report 中")
	it := rr.Items[0]
	assert.Equal(t, domain.StatusProcessed, it.Status, it.ErrorMsg)
	assert.Equal(t, "54321", it.ItemID)
	assert.Equal(t, "GETCHU-54321", it.Number)
	assert.Equal(t, "[GETCHU-54321][LabelX]Title_Y", it.NewName)

	final := filepath.Join(root, "[GETCHU-54321][LabelX]Title_Y")
	assert.NoDirExists(t, filepath.Join(root, "item54321"))
	assert.FileExists(t, filepath.Join(final, "poster.jpg"))
	assert.FileExists(t, filepath.Join(final, "backdrop1.jpg"))

	b, err := os.ReadFile(filepath.Join(final, "movie.nfo"))
	require.NoError(t, err)
	nfo := string(b)
	assert.Contains(t, nfo, "<year>2022</year>")
	assert.Equal(t, 1, strings.Count(nfo, "<genre>Drama</genre>"))
	assert.Contains(t, nfo, "<number>GETCHU-54321</number>")
	assert.Contains(t, nfo, "<premiered>2022-01-01</premiered>")

	assert.Equal(t, 1, web.count("/c.jpg"))
	assert.Equal(t, 1, web.count("/p1.jpg"))
	assert.NotEmpty(t, rr.RunID)
	assert.Equal(t, 1, rr.Summary.Processed)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	root, web, r := newEnv(t, "getchu", true, map[string]string{
		"/v1/movies/Getchu/54321": getchuDetail,
	})
	mkdir(t, root, "item54321")

	first := r.Run(context.Background())
	require.Equal(t, domain.StatusProcessed, first.Items[0].Status)

	// 改名后的目录 [GETCHU-54321]... 仍能解析出同一 ID：不再改名、不再下载、不覆盖 sidecar。
	second := r.Run(context.Background())
	require.Len(t, second.Items, 1)
	it := second.Items[0]
	assert.Equal(t, domain.StatusProcessed, it.Status, it.ErrorMsg)
	assert.Equal(t, "", it.NewName)
	for _, f := range it.Files {
		assert.Equal(t, domain.FileStatusExists, f.Status, f.Path)
	}
	assert.Equal(t, 1, web.count("/c.jpg"))
}

func TestRun_GetchuPerVideoDirSidecars(t *testing.T) {
	root, _, r := newEnv(t, "getchu", true, map[string]string{
		"/v1/movies/Getchu/54321": getchuDetail,
	})
	touch(t, filepath.Join(root, "item54321", "cd1", "a.mp4"))
	touch(t, filepath.Join(root, "item54321", "cd2", "b.mkv"))

	rr := r.Run(context.Background())
	require.Equal(t, domain.StatusProcessed, rr.Items[0].Status, rr.Items[0].ErrorMsg)

	final := filepath.Join(root, "[GETCHU-54321][LabelX]Title_Y")
	assert.FileExists(t, filepath.Join(final, "cd1", "movie.nfo"))
	assert.FileExists(t, filepath.Join(final, "cd2", "movie.nfo"))
	assert.NoFileExists(t, filepath.Join(final, "movie.nfo"))
}

func TestRun_GetchuAbsentUsesGuessedAssets(t *testing.T) {
	root, web, r := newEnv(t, "getchu", true, nil)
	mkdir(t, root, "item54321")

	rr := r.Run(context.Background())
	require.Len(t, rr.Items, 1)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusProcessed, it.Status, it.ErrorMsg)
	assert.True(t, it.Guessed)
	assert.Equal(t, "", it.NewName)

	dir := filepath.Join(root, "item54321")
	assert.FileExists(t, filepath.Join(dir, "poster.jpg"))
	assert.FileExists(t, filepath.Join(dir, "backdrop1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "backdrop3.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "movie.nfo"))
	assert.Equal(t, 1, web.count("/data/item_img/543/54321/54321top.jpg"))
}

func TestRun_GyuttoDownSoldIsSkipped(t *testing.T) {
	root, _, r := newEnv(t, "gyutto", true, map[string]string{
		"/i/item999": `<html><body><div class="parts_Mds01 clearfix"><h1>エラーが発生しました。</h1></div></body></html>`,
	})
	dir := mkdir(t, root, "gyutto-999")

	rr := r.Run(context.Background())
	require.Len(t, rr.Items, 1)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusSkipped, it.Status)
	assert.Equal(t, domain.ErrCodeUnavailable, it.ErrorCode)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "下架条目不应写入任何文件")
	assert.DirExists(t, dir)
}

func TestRun_GyuttoScrapeFirstMatchNoNumber(t *testing.T) {
	root, _, r := newEnv(t, "gyutto", true, map[string]string{
		"/i/item12345": `<html><body>
<div class="parts_Mds01 clearfix"><h1>Work: One</h1></div>
<div class="unit_DojinMainPh"><a class="highslide"><img src="/img/12345.jpg"></a></div>
<dl><dt>サークル</dt><dd><a>CircleA</a></dd><dt>配信開始日</dt><dd>2023年5月1日</dd></dl>
</body></html>`,
	})
	touch(t, filepath.Join(root, "GYUTTO-12345 extra", "a", "v.mp4"))
	touch(t, filepath.Join(root, "GYUTTO-12345 extra", "b", "v.mp4"))

	rr := r.Run(context.Background())
	it := rr.Items[0]
	require.Equal(t, domain.StatusProcessed, it.Status, it.ErrorMsg)
	assert.Equal(t, "[GYUTTO-12345][CircleA]Work_ One", it.NewName)

	final := filepath.Join(root, "[GYUTTO-12345][CircleA]Work_ One")
	assert.FileExists(t, filepath.Join(final, "poster.jpg"))
	b, err := os.ReadFile(filepath.Join(final, "a", "movie.nfo"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "<number>")
	assert.Contains(t, string(b), "<year>2023</year>")
	assert.NoFileExists(t, filepath.Join(final, "b", "movie.nfo"))
}

func TestRun_SearchOverwritesSidecar(t *testing.T) {
	root, _, r := newEnv(t, "search", true, map[string]string{
		"/v1/movies/search":   `{"data":[{"id":"77","provider":"Getchu"}]}`,
		"/v1/movies/Getchu/77": `{"data":{"number":"GETCHU-77","maker":"MakerM","title":"T"}}`,
	})
	r.Config.Rename = false
	touch(t, filepath.Join(root, "Some Title", "movie.nfo"))

	rr := r.Run(context.Background())
	it := rr.Items[0]
	require.Equal(t, domain.StatusProcessed, it.Status, it.ErrorMsg)
	assert.Equal(t, "", it.NewName)

	b, err := os.ReadFile(filepath.Join(root, "Some Title", "movie.nfo"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<director>MakerM</director>")
}

func TestRun_RenameConflictWritesSidecarInPlace(t *testing.T) {
	root, _, r := newEnv(t, "getchu", true, map[string]string{
		"/v1/movies/Getchu/54321": getchuDetail,
	})
	mkdir(t, root, "item54321")
	mkdir(t, root, "[GETCHU-54321][LabelX]Title_Y")

	rr := r.Run(context.Background())
	var it domain.ItemResult
	for _, x := range rr.Items {
		if x.Folder == "item54321" {
			it = x
		}
	}
	assert.Equal(t, domain.StatusFailed, it.Status)
	assert.Equal(t, domain.ErrCodeRenameConflict, it.ErrorCode)
	assert.FileExists(t, filepath.Join(root, "item54321", "movie.nfo"))
	assert.FileExists(t, filepath.Join(root, "item54321", "poster.jpg"))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root, web, r := newEnv(t, "getchu", false, map[string]string{
		"/v1/movies/Getchu/54321": getchuDetail,
	})
	touch(t, filepath.Join(root, "item54321", "sub", "v.mp4"))

	rr := r.Run(context.Background())
	require.True(t, rr.DryRun)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusProcessed, it.Status)
	assert.Equal(t, "[GETCHU-54321][LabelX]Title_Y", it.NewName)

	paths := make([]string, 0, len(it.Files))
	for _, f := range it.Files {
		assert.Equal(t, domain.FileStatusPlanned, f.Status)
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{
		"[GETCHU-54321][LabelX]Title_Y/poster.jpg",
		"[GETCHU-54321][LabelX]Title_Y/backdrop1.jpg",
		"[GETCHU-54321][LabelX]Title_Y/sub/movie.nfo",
	}, paths)

	assert.DirExists(t, filepath.Join(root, "item54321"))
	assert.NoFileExists(t, filepath.Join(root, "item54321", "sub", "movie.nfo"))
	assert.Equal(t, 0, web.count("/c.jpg"))
}

func TestRun_UnmatchedAndFetchFailure(t *testing.T) {
	root, _, r := newEnv(t, "gyutto", true, nil)
	mkdir(t, root, "random folder")
	mkdir(t, root, "gyutto-404")

	rr := r.Run(context.Background())
	require.Len(t, rr.Items, 2)

	byFolder := map[string]domain.ItemResult{}
	for _, it := range rr.Items {
		byFolder[it.Folder] = it
	}
	assert.Equal(t, domain.StatusUnmatched, byFolder["random folder"].Status)
	assert.Equal(t, domain.ErrCodeUnmatchedID, byFolder["random folder"].ErrorCode)
	assert.Equal(t, domain.StatusFailed, byFolder["gyutto-404"].Status)
	assert.Equal(t, domain.ErrCodeFetchFailed, byFolder["gyutto-404"].ErrorCode)
	assert.Equal(t, 1, rr.Summary.Failed)
	assert.Equal(t, 1, rr.Summary.Unmatched)
}

func TestRun_MissingBaseDir(t *testing.T) {
	_, _, r := newEnv(t, "getchu", false, nil)
	r.Config.Path = filepath.Join(r.Config.Path, "missing")

	rr := r.Run(context.Background())
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeIOFailed, rr.Items[0].ErrorCode)
	assert.Equal(t, "", rr.Items[0].Folder)
}

func r0(t *testing.T) provider.Registry {
	t.Helper()
	reg, err := app.NewRegistry(config.EffectiveConfig{})
	require.NoError(t, err)
	return reg
}
