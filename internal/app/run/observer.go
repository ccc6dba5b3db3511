package run

import (
	"time"

	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件按目录顺序同步触发；实现不应阻塞太久
type Observer interface {
	// OnStart 在 Run 开始时调用（早于任何网络请求）。
	OnStart(eff config.EffectiveConfig, runID string)
	// OnPhaseDone 在阶段结束时调用（目前只有 list：目录列举）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个目录处理完成时调用（idx 从 1 开始，total 为目录数）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
