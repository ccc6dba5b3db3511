// Package itemid 从目录名中解析 provider 专属的目录 ID。
package itemid

import (
	"regexp"
	"strings"
)

// Extractor 把目录名解析为 resolver 的查询键。
// ok=false 表示该目录不匹配：上层记录日志并跳过，不是致命错误。
type Extractor interface {
	Extract(folder string) (id string, ok bool)
}

// Getchu 匹配 item<digits>、[<digits>] 或 [GETCHU-<digits>]，返回首个数字段。
type Getchu struct{}

var getchuRE = regexp.MustCompile(`item(\d+)|\[(?:GETCHU-)?(\d+)\]`)

func (Getchu) Extract(folder string) (string, bool) {
	return firstGroup(getchuRE.FindStringSubmatch(folder))
}

// Gyutto 匹配（忽略大小写）gyutto-<digits>[尾部非数字文本]，可带方括号；或整名为 item<digits>。
//
// 注意：前缀 gyutto 是必需的，纯数字目录名不匹配（避免把 "2023 合集" 之类误判为 ID）。
type Gyutto struct{}

var gyuttoRE = regexp.MustCompile(`(?i)^\[?gyutto-?(\d+)\]?(?:\D.*|\d*)?$|^item(\d+)$`)

func (Gyutto) Extract(folder string) (string, bool) {
	return firstGroup(gyuttoRE.FindStringSubmatch(folder))
}

// Query 不做任何解析：整个目录名原样作为搜索关键字。
type Query struct{}

func (Query) Extract(folder string) (string, bool) {
	if strings.TrimSpace(folder) == "" {
		return "", false
	}
	return folder, true
}

func firstGroup(m []string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}
