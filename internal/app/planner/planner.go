package planner

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/asset"
	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/sanitize"
)

// ErrNoMetadata 表示既没有 Record 也没有可用的猜测图片：该目录无事可做。
var ErrNoMetadata = errors.New("元数据缺失且无可用的兜底图片")

// Options 是按 profile 变化的规划策略。
type Options struct {
	Rename     bool
	NameBudget int

	// AbsentName 非 nil 时，元数据缺失的目录也会改名（例如 Gyutto-{id}）。
	AbsentName func(itemID string) string
}

// Guess 是按 ID 拼出的兜底图片地址。
type Guess struct {
	CoverURL    string
	PreviewURLs []string
}

func (g Guess) empty() bool {
	return strings.TrimSpace(g.CoverURL) == "" && len(g.PreviewURLs) == 0
}

// FolderName 生成规范目录名：[number][label]title。
// 每段先各自清洗，再对整体清洗一次（整体清洗负责最终的字节预算）。
func FolderName(rec domain.Record, budget int) string {
	number := sanitize.Name(rec.Number, budget)
	label := sanitize.Name(rec.Label, budget)
	title := sanitize.Name(rec.Title, budget)
	return sanitize.Name("["+number+"]["+label+"]"+title, budget)
}

// PlanFolder 基于 FolderTask 生成确定性的执行计划（不做任何写入/改名）。
//
// 规则：
// - 有 Record：封面 + 全部预览图，写 sidecar，按 Options.Rename 决定是否改名
// - 无 Record 但有猜测图片：只下载图片，不写 sidecar；仅当 AbsentName 非 nil 时改名
// - 两者都没有：返回 ErrNoMetadata
// - 图片写入原目录（改名前），文件名 poster<ext> / backdrop<N><ext>
func PlanFolder(task domain.FolderTask, guess Guess, opt Options) (domain.FolderPlan, error) {
	src := filepath.Clean(task.Path)
	plan := domain.FolderPlan{SrcAbs: src, DstAbs: src}

	var (
		cover    string
		previews []string
		newName  string
	)
	switch {
	case task.Record != nil:
		cover = task.Record.CoverURL
		previews = task.Record.PreviewURLs
		plan.WriteSidecar = true
		newName = FolderName(*task.Record, opt.NameBudget)
	case !guess.empty():
		cover = guess.CoverURL
		previews = guess.PreviewURLs
		plan.Guessed = true
		if opt.AbsentName != nil {
			newName = sanitize.Name(opt.AbsentName(task.ItemID), opt.NameBudget)
		}
	default:
		return domain.FolderPlan{}, ErrNoMetadata
	}

	if u := strings.TrimSpace(cover); u != "" {
		plan.Assets = append(plan.Assets, domain.AssetPlan{
			Kind:   domain.AssetPoster,
			URL:    u,
			DstAbs: filepath.Join(src, asset.PosterName(u)),
		})
	}
	n := 0
	for _, u := range previews {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		n++
		plan.Assets = append(plan.Assets, domain.AssetPlan{
			Kind:   domain.AssetBackdrop,
			URL:    u,
			DstAbs: filepath.Join(src, asset.BackdropName(n, u)),
		})
	}

	if opt.Rename && newName != "" {
		plan.DstAbs = filepath.Join(filepath.Dir(src), newName)
	}
	return plan, nil
}
