package gyutto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/folderscrape/internal/domain"
	providerx "github.com/John-Robertt/folderscrape/internal/provider"
)

// DefaultBaseURL 是站点默认域名。
const DefaultBaseURL = "https://gyutto.com"

// UnavailablePhrase 出现在标题中时，表示条目已下架（站点仍返回 200）。
const UnavailablePhrase = "エラーが発生しました。"

// Provider 实现 Gyutto 详情页的抓取与 HTML 解析。
//
// 约束：
// - 详情页 URL 可直接拼出：{base}/i/item{id}
// - Fetch/Parse 不做缓存/重试/限速（由上层统一控制）
// - Parse 必须是纯函数（依赖输入 id + html + pageURL）
type Provider struct {
	// BaseURL 为空时使用 https://gyutto.com；相对图片地址也按它补全。
	BaseURL string
}

func (Provider) Name() string { return "gyutto" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// PageURL 返回条目详情页地址。
func (p Provider) PageURL(id string) string {
	return p.baseURL() + "/i/item" + url.PathEscape(id)
}

func (p Provider) Resolve(ctx context.Context, id string, c *http.Client) (domain.Record, error) {
	html, pageURL, err := p.Fetch(ctx, id, c)
	if err != nil {
		return domain.Record{}, err
	}
	return p.Parse(id, html, pageURL)
}

// Fetch 直接进入详情页；非 200 返回 *provider.HTTPStatusError。
func (p Provider) Fetch(ctx context.Context, id string, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", errors.New("id 不能为空")
	}
	pageURL := p.PageURL(id)
	b, err := fetchURL(ctx, c, pageURL)
	return b, pageURL, err
}

// Parse 把详情页 HTML 解析为 Record。
//
// 规则：
// - 标题缺失或 HTML 无法解析：返回 error（条目视为缺失）
// - 标题包含下架提示：返回 *provider.UnavailableError
// - 其他字段缺失时置空，不报错
func (p Provider) Parse(id string, html []byte, pageURL string) (domain.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Record{}, errors.New("id 不能为空")
	}
	if len(html) == 0 {
		return domain.Record{}, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Record{}, &providerx.ParseError{URL: pageURL, Err: err}
	}

	title := strings.TrimSpace(doc.Find("div.parts_Mds01.clearfix h1").First().Text())
	if strings.Contains(title, UnavailablePhrase) {
		return domain.Record{}, &providerx.UnavailableError{URL: pageURL, Phrase: UnavailablePhrase}
	}
	if title == "" {
		return domain.Record{}, &providerx.IncompleteError{Field: "title"}
	}

	base := p.baseURL() + "/"
	cover := ""
	if src, ok := doc.Find("div.unit_DojinMainPh a.highslide img").First().Attr("src"); ok {
		cover = resolveURL(base, src)
	}

	var previews []string
	doc.Find("div.unit_SamplePhSmall a.highslide img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			previews = append(previews, resolveURL(base, src))
		}
	})

	circle := strings.TrimSpace(findDD(doc, "サークル").Find("a").First().Text())

	var genres []string
	findDD(doc, "ジャンル").Find("a").Each(func(_ int, s *goquery.Selection) {
		genres = append(genres, strings.TrimSpace(s.Text()))
	})

	release := strings.TrimSpace(findDD(doc, "配信開始日").Text())
	summary := strings.TrimSpace(doc.Find("div.unit_DetailSummary.clearfix p, div.unit_DetailSummary.clearfix div.ItemLead").First().Text())

	return domain.Record{
		Number:      "GYUTTO-" + id,
		Label:       circle,
		Title:       title,
		CoverURL:    cover,
		PreviewURLs: previews,
		Genres:      providerx.NormList(genres),
		ReleaseDate: release,
		Summary:     summary,
		Provider:    "Gyutto",
		Website:     strings.TrimSpace(pageURL),
	}, nil
}

// Guess 按图片服务器的目录规则拼出封面与三张预览图的 URL（不访问网络）。
func (Provider) Guess(id string) (string, []string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	bucket := ""
	if len(id) > 2 {
		bucket = id[:len(id)-2]
	}
	base := fmt.Sprintf("https://image.gyutto.com/data/item_img/%s/%s/", bucket, id)
	previews := make([]string, 0, 3)
	for n := 430; n <= 432; n++ {
		previews = append(previews, fmt.Sprintf("%s%s_%d.jpg", base, id, n))
	}
	return base + id + ".jpg", previews
}

// findDD 找到文本包含 header 的第一个 <dt>，返回紧随其后的 <dd>。
// 找不到时返回空 Selection（后续 Find/Text 均安全）。
func findDD(doc *goquery.Document, header string) *goquery.Selection {
	var dd *goquery.Selection
	doc.Find("dt").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), header) {
			return true
		}
		dd = s.NextFiltered("dd")
		return false
	})
	if dd == nil {
		return doc.Find("dd.__none__")
	}
	return dd
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
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
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
