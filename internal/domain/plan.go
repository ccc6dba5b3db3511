package domain

const (
	AssetPoster   = "poster"
	AssetBackdrop = "backdrop"
)

// AssetPlan 规划一次图片下载（只描述 url/dst；真正下载由 asset 层执行）。
type AssetPlan struct {
	Kind   string
	URL    string
	DstAbs string
}

// FolderPlan 是对单个目录的最小执行计划。
//
// 顺序约定：先下载图片（写入原目录），再改名，最后写 sidecar（写入改名后的目录）。
type FolderPlan struct {
	SrcAbs string
	DstAbs string // 与 SrcAbs 相同表示不改名

	Assets       []AssetPlan
	WriteSidecar bool

	// Guessed 表示图片 URL 来自按 ID 拼接的猜测规则（元数据缺失时的兜底）。
	Guessed bool
}

// Renames 判断计划是否包含改名。
func (p FolderPlan) Renames() bool {
	return p.DstAbs != "" && p.DstAbs != p.SrcAbs
}
