// Package metatube 封装本地元数据聚合服务的 HTTP 契约。
//
// 只覆盖两个接口：
//   - GET {base}/v1/movies/{provider}/{id}
//   - GET {base}/v1/movies/search?q={text}
//
// 响应统一包在 {"data": ...} 信封里。
package metatube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/domain"
	providerx "github.com/John-Robertt/folderscrape/internal/provider"
)

// DefaultBaseURL 是服务的默认监听地址。
const DefaultBaseURL = "http://127.0.0.1:8080"

// Client 是无状态的：http.Client 由调用方按 run 注入。
type Client struct {
	BaseURL string
}

// Movie 是详情接口 data 字段中被消费的部分；其余字段忽略。
type Movie struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	Number        string   `json:"number"`
	Title         string   `json:"title"`
	Label         string   `json:"label"`
	Maker         string   `json:"maker"`
	Series        string   `json:"series"`
	CoverURL      string   `json:"cover_url"`
	PreviewImages []string `json:"preview_images"`
	Genres        []string `json:"genres"`
	ReleaseDate   string   `json:"release_date"`
	Summary       string   `json:"summary"`
	Homepage      string   `json:"homepage"`
}

// SearchResult 是搜索接口 data 数组中的一项。
type SearchResult struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Number   string `json:"number"`
	Title    string `json:"title"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// MovieURL 返回详情接口的完整 URL（provider/id 各自做 path escape）。
func (c Client) MovieURL(provider, id string) string {
	return c.baseURL() + "/v1/movies/" + url.PathEscape(provider) + "/" + url.PathEscape(id)
}

// SearchURL 返回搜索接口的完整 URL。
func (c Client) SearchURL(q string) string {
	return c.baseURL() + "/v1/movies/search?q=" + url.QueryEscape(q)
}

// Movie 请求详情接口。
//
// 规则：
// - 非 200 返回 *provider.HTTPStatusError
// - data 缺失/为 null/为空对象返回 provider.ErrNotFound
// - JSON 损坏返回 *provider.ParseError
func (c Client) Movie(ctx context.Context, hc *http.Client, provider, id string) (Movie, error) {
	provider = strings.TrimSpace(provider)
	id = strings.TrimSpace(id)
	if provider == "" || id == "" {
		return Movie{}, errors.New("provider 与 id 不能为空")
	}

	u := c.MovieURL(provider, id)
	data, err := getData(ctx, hc, u)
	if err != nil {
		return Movie{}, err
	}
	if isEmptyJSON(data) {
		return Movie{}, fmt.Errorf("%s/%s: %w", provider, id, providerx.ErrNotFound)
	}

	var m Movie
	if err := json.Unmarshal(data, &m); err != nil {
		return Movie{}, &providerx.ParseError{URL: u, Err: err}
	}
	return m, nil
}

// Search 请求搜索接口，返回服务端给出的原始顺序。
// 空结果返回 provider.ErrNotFound。
func (c Client) Search(ctx context.Context, hc *http.Client, q string) ([]SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errors.New("q 不能为空")
	}

	u := c.SearchURL(q)
	data, err := getData(ctx, hc, u)
	if err != nil {
		return nil, err
	}
	if isEmptyJSON(data) {
		return nil, fmt.Errorf("search %q: %w", q, providerx.ErrNotFound)
	}

	var out []SearchResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &providerx.ParseError{URL: u, Err: err}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("search %q: %w", q, providerx.ErrNotFound)
	}
	return out, nil
}

// Record 把服务端字段映射为统一 Record（不做 label 回退，由具体 resolver 决定）。
func (m Movie) Record() domain.Record {
	return domain.Record{
		Number:      m.Number,
		Label:       m.Label,
		Maker:       m.Maker,
		Series:      m.Series,
		Title:       m.Title,
		CoverURL:    m.CoverURL,
		PreviewURLs: append([]string(nil), m.PreviewImages...),
		Genres:      append([]string(nil), m.Genres...),
		ReleaseDate: m.ReleaseDate,
		Summary:     m.Summary,
		Provider:    m.Provider,
		Website:     m.Homepage,
	}
}

func getData(ctx context.Context, hc *http.Client, u string) (json.RawMessage, error) {
	if hc == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, &providerx.ParseError{URL: u, Err: err}
	}
	return env.Data, nil
}

func isEmptyJSON(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	switch string(t) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}
