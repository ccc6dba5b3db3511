package search

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/provider/metatube"
)

// FC2 缩略图 CDN 地址会带一个无效的前置段，直连 storage 主机才能下载。
var fc2ThumbRe = regexp.MustCompile(`^https://contents-thumbnail2\.fc2\.com/[^/]+/(storage\d+\.contents\.fc2\.com/.+)`)

// Resolver 以目录名为自由文本先搜索，再取第一条结果的详情。
//
// 规则：
// - 搜索结果为空：条目缺失
// - 只使用第一条结果的 (id, provider)，不做二次匹配
// - label 为空时依次回退到 maker、series
// - provider 为 FC2 时修正封面与预览图地址
type Resolver struct {
	Service metatube.Client
}

func (Resolver) Name() string { return "search" }

func (r Resolver) Resolve(ctx context.Context, query string, c *http.Client) (domain.Record, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Record{}, errors.New("query 不能为空")
	}
	results, err := r.Service.Search(ctx, c, query)
	if err != nil {
		return domain.Record{}, err
	}
	first := results[0]

	m, err := r.Service.Movie(ctx, c, first.Provider, first.ID)
	if err != nil {
		return domain.Record{}, err
	}
	rec := m.Record()
	if strings.TrimSpace(rec.Provider) == "" {
		rec.Provider = first.Provider
	}
	if strings.TrimSpace(rec.Number) == "" {
		rec.Number = first.ID
	}
	rec.Label = firstNonEmpty(rec.Label, rec.Maker, rec.Series)

	if first.Provider == "FC2" {
		rec.CoverURL = FixFC2URL(rec.CoverURL)
		for i, u := range rec.PreviewURLs {
			rec.PreviewURLs[i] = FixFC2URL(u)
		}
	}
	return rec, nil
}

// FixFC2URL 把 contents-thumbnail2 的转发地址改写为 storage 直连地址；不匹配时原样返回。
func FixFC2URL(u string) string {
	m := fc2ThumbRe.FindStringSubmatch(u)
	if m == nil {
		return u
	}
	return "https://" + m[1]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
