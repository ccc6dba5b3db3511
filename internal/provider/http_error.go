package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示接口正常返回但没有任何结果（例如搜索结果为空、data 为空对象）。
var ErrNotFound = errors.New("not found")

// HTTPStatusError 表示接口/站点返回了非 200 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// UnavailableError 表示页面内容本身声明该条目不可用（已下架/不存在）。
// 这是基于内容的信号，与 HTTP 状态码无关：站点在这种情况下通常仍返回 200。
type UnavailableError struct {
	URL    string
	Phrase string
}

func (e *UnavailableError) Error() string {
	if e == nil || strings.TrimSpace(e.Phrase) == "" {
		return "unavailable"
	}
	return fmt.Sprintf("unavailable: 页面包含 %q", e.Phrase)
}

// ParseError 表示响应无法解析（HTML/JSON 结构整体损坏）。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IncompleteError 表示解析成功但缺少 Record 的必填字段（title/number）。
type IncompleteError struct {
	Field string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("元数据缺少必填字段 %s", e.Field)
}
