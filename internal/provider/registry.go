package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 是 resolver 的只读注册表（按 name 索引）。
// 用 map 做 O(1) 查找；resolver 数量极小，保持简单即可。
type Registry struct {
	byName map[string]Resolver
}

func NewRegistry(resolvers ...Resolver) (Registry, error) {
	byName := make(map[string]Resolver, len(resolvers))
	for _, r := range resolvers {
		if r == nil {
			return Registry{}, fmt.Errorf("resolver 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(r.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("resolver.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 resolver：%q", name)
		}
		byName[name] = r
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Resolver, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := r.byName[name]
	return p, ok
}

// Names 返回已注册的 resolver 名称（已排序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
