package app

import (
	"fmt"

	"github.com/John-Robertt/folderscrape/internal/app/planner"
	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/itemid"
	"github.com/John-Robertt/folderscrape/internal/nfo"
	"github.com/John-Robertt/folderscrape/internal/provider"
	"github.com/John-Robertt/folderscrape/internal/provider/getchu"
	"github.com/John-Robertt/folderscrape/internal/provider/gyutto"
	"github.com/John-Robertt/folderscrape/internal/provider/metatube"
	"github.com/John-Robertt/folderscrape/internal/provider/search"
	"github.com/John-Robertt/folderscrape/internal/sanitize"
	"github.com/John-Robertt/folderscrape/internal/sidecar"
)

// Profile 把“某个数据源的全部差异”收敛为一组显式策略，共享同一条处理流水线。
//
// 差异点：
// - 目录名 -> ID 的解析规则（Extractor）
// - resolver（注册表中的名字）
// - sidecar 的放置与覆盖策略、NFO 是否包含 number、年份提取策略
// - 元数据缺失时是否下载猜测图片，以及是否改名
// - 目录名字节预算
type Profile struct {
	Name      string
	Resolver  string
	Extractor itemid.Extractor
	Sidecar   sidecar.Writer
	Plan      planner.Options

	// GuessOnAbsent 为 true 且 resolver 实现了 provider.Guesser 时，元数据缺失仍下载猜测图片。
	GuessOnAbsent bool
}

// ProfileFor 返回 eff.Provider 对应的 profile，并应用配置覆盖（rename / guess_on_absent）。
func ProfileFor(eff config.EffectiveConfig) (Profile, error) {
	var p Profile
	switch eff.Provider {
	case "getchu":
		p = Profile{
			Name:      "getchu",
			Resolver:  "getchu",
			Extractor: itemid.Getchu{},
			Sidecar: sidecar.Writer{
				Placement: sidecar.PlacePerVideoDir,
				NFO:       nfo.Options{IncludeNumber: true, Year: nfo.YearISOPrefix},
			},
			Plan:          planner.Options{NameBudget: sanitize.BudgetDefault},
			GuessOnAbsent: true,
		}
	case "gyutto":
		p = Profile{
			Name:      "gyutto",
			Resolver:  "gyutto",
			Extractor: itemid.Gyutto{},
			Sidecar: sidecar.Writer{
				Placement: sidecar.PlaceFirstMatch,
				NFO:       nfo.Options{IncludeNumber: false, Year: nfo.YearRegex},
			},
			Plan: planner.Options{
				NameBudget: sanitize.BudgetShort,
				AbsentName: func(id string) string { return "Gyutto-" + id },
			},
		}
	case "search":
		p = Profile{
			Name:      "search",
			Resolver:  "search",
			Extractor: itemid.Query{},
			Sidecar: sidecar.Writer{
				Placement: sidecar.PlaceFirstMatch,
				Overwrite: true,
				NFO:       nfo.Options{IncludeNumber: true, Year: nfo.YearISOPrefix},
			},
			Plan: planner.Options{NameBudget: sanitize.BudgetShort},
		}
	default:
		return Profile{}, fmt.Errorf("未知 provider：%q", eff.Provider)
	}

	p.Plan.Rename = eff.Rename
	if eff.GuessOnAbsent != nil {
		p.GuessOnAbsent = *eff.GuessOnAbsent
	}
	return p, nil
}

// NewRegistry 按配置构造全部 resolver（服务地址/站点地址来自 eff）。
func NewRegistry(eff config.EffectiveConfig) (provider.Registry, error) {
	svc := metatube.Client{BaseURL: eff.ServiceURL}
	return provider.NewRegistry(
		getchu.Resolver{Service: svc},
		gyutto.Provider{BaseURL: eff.SiteURL},
		search.Resolver{Service: svc},
	)
}
