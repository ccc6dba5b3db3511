package domain

// FolderTask 是一次目录迭代的临时工作单元：开始时创建，迭代结束即丢弃。
// 只由当前迭代独占，不在条目之间共享。
type FolderTask struct {
	Name   string // 目录名（base name）
	Path   string // 绝对路径
	ItemID string // Identifier Extractor 的结果；search 策略下即目录名本身

	Record *Record // nil 表示元数据缺失
}
