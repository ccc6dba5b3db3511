package domain

// VideoFile 是在标题目录内递归找到的一个视频文件；sidecar 的放置目标由它的 Dir 决定。
//
// 约束：
// - AbsPath 为 clean + absolute；RelPath 相对于被扫描的标题目录，使用 '/' 分隔
// - 只做 stat，不读文件内容
type VideoFile struct {
	AbsPath string
	RelPath string
	Dir     string // AbsPath 所在目录
	Ext     string // 小写，例如 ".mp4"
	Size    int64
}
