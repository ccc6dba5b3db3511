package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/domain"
)

const (
	StageFetch       = "fetch"
	StageParse       = "parse"
	StageNotFound    = "not_found"
	StageUnavailable = "unavailable"
)

// Error 是 resolver 阶段的可追溯错误。
// 上层据此把失败归类为 fetch_failed / parse_failed / not_found / unavailable，并写入 report。
type Error struct {
	Provider string // resolver name（小写）
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolve 通过注册表找到 resolver 并解析 key，返回规范化后的 Record。
//
// 规则：
// - resolver 返回的 error 统一包装为 *Error（带 Stage）
// - 记录缺少 title 或 number 时视为缺失（IncompleteError，Stage=parse）
// - 字符串字段去首尾空白；PreviewURLs 去掉空串；Genres 去重并保持首次出现顺序
func Resolve(ctx context.Context, reg Registry, name, key string, c *http.Client) (domain.Record, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return domain.Record{}, fmt.Errorf("provider 不能为空")
	}
	if strings.TrimSpace(key) == "" {
		return domain.Record{}, fmt.Errorf("key 不能为空")
	}
	r, ok := reg.Get(name)
	if !ok {
		return domain.Record{}, fmt.Errorf("provider 未注册：%q", name)
	}

	rec, err := r.Resolve(ctx, key, c)
	if err != nil {
		return domain.Record{}, &Error{Provider: name, Stage: stageOf(err), Err: err}
	}

	rec = normalize(rec)
	if rec.Title == "" {
		return domain.Record{}, &Error{Provider: name, Stage: StageParse, Err: &IncompleteError{Field: "title"}}
	}
	if rec.Number == "" {
		return domain.Record{}, &Error{Provider: name, Stage: StageParse, Err: &IncompleteError{Field: "number"}}
	}
	return rec, nil
}

func stageOf(err error) string {
	var ue *UnavailableError
	var pe *ParseError
	var ie *IncompleteError
	switch {
	case errors.As(err, &ue):
		return StageUnavailable
	case errors.Is(err, ErrNotFound):
		return StageNotFound
	case errors.As(err, &pe), errors.As(err, &ie):
		return StageParse
	default:
		return StageFetch
	}
}

func normalize(r domain.Record) domain.Record {
	r.Number = strings.TrimSpace(r.Number)
	r.Label = strings.TrimSpace(r.Label)
	r.Maker = strings.TrimSpace(r.Maker)
	r.Series = strings.TrimSpace(r.Series)
	r.Title = strings.TrimSpace(r.Title)
	r.CoverURL = strings.TrimSpace(r.CoverURL)
	r.ReleaseDate = strings.TrimSpace(r.ReleaseDate)
	r.Summary = strings.TrimSpace(r.Summary)

	previews := make([]string, 0, len(r.PreviewURLs))
	for _, u := range r.PreviewURLs {
		if u = strings.TrimSpace(u); u != "" {
			previews = append(previews, u)
		}
	}
	r.PreviewURLs = previews
	r.Genres = NormList(r.Genres)
	return r
}

// NormList 去空白、去空串、去重（保持首次出现顺序）。结果永不为 nil。
func NormList(in []string) []string {
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
