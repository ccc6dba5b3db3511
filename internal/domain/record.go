package domain

// Record 是三种 resolver 统一产出的元数据结构。
//
// 约束：
// - 要么整体缺失（resolver 返回 error），要么至少包含 Title 与 Number
// - 其余字段缺失时为空串/空切片，拼接文件名与 NFO 时不需要再判空
// - Genres 语义上是集合：去重后保持首次出现的顺序，但顺序不承载含义
type Record struct {
	Number string
	Label  string
	Maker  string
	Series string
	Title  string

	CoverURL    string
	PreviewURLs []string
	Genres      []string

	ReleaseDate string // 原始日期文本：ISO（2022-01-01T00:00:00）或站点自由文本（2023年5月1日）
	Summary     string

	// Provider 是元数据的实际来源（search 策略下为服务端返回的 provider，例如 FC2）。
	Provider string
	Website  string
}

// Director 返回写入 NFO <director> 的值。
// label -> maker -> series 的回退链由具体 resolver 决定是否提前合并进 Label。
func (r Record) Director() string { return r.Label }
