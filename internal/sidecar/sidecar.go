// Package sidecar 决定 movie.nfo 写到哪里，并按覆盖策略落盘。
package sidecar

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/infra/fsx"
	"github.com/John-Robertt/folderscrape/internal/nfo"
	"github.com/John-Robertt/folderscrape/internal/scan"
)

// FileName 是固定的 sidecar 文件名。
const FileName = "movie.nfo"

// Placement 是 sidecar 的放置策略。
type Placement int

const (
	// PlacePerVideoDir 在每个直接包含视频文件的目录各写一份。
	PlacePerVideoDir Placement = iota
	// PlaceFirstMatch 只写一份：最浅的视频目录（同深度取字典序最小）。
	PlaceFirstMatch
)

func (p Placement) String() string {
	switch p {
	case PlacePerVideoDir:
		return "per-video-dir"
	case PlaceFirstMatch:
		return "first-match"
	default:
		return "unknown"
	}
}

// Result 描述单个 sidecar 目标的处理结果。
type Result struct {
	Path   string
	Status string // domain.FileStatus*
	Err    error
}

// Writer 组合放置策略、覆盖策略与 NFO 输出选项。
type Writer struct {
	Placement Placement
	Overwrite bool
	NFO       nfo.Options
}

// Targets 返回 folder 下应写入 sidecar 的目录列表。
//
// 规则：
// - 没有任何视频文件：只有 folder 本身
// - PlacePerVideoDir：每个视频目录一份（可能包含 folder 本身）
// - PlaceFirstMatch：只取第一个视频目录
func (w Writer) Targets(folder string) ([]string, error) {
	dirs, err := scan.VideoDirs(folder)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return []string{filepath.Clean(folder)}, nil
	}
	if w.Placement == PlaceFirstMatch {
		return dirs[:1], nil
	}
	return dirs, nil
}

// Write 把 rec 编码后写到 folder 的所有目标目录。
//
// 单个目标失败不影响其他目标；返回的 error 只表示目标解析或编码失败（此时没有写任何文件）。
// 目标已存在且不允许覆盖时，该目标状态为 exists。
func (w Writer) Write(rec domain.Record, folder string) ([]Result, error) {
	targets, err := w.Targets(folder)
	if err != nil {
		return nil, err
	}
	data, err := nfo.Encode(rec, w.NFO)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(targets))
	for _, dir := range targets {
		r := Result{Path: filepath.Join(dir, FileName)}
		if w.Overwrite {
			err = fsx.WriteFileAtomicReplace(dir, FileName, data)
		} else {
			err = fsx.WriteFileAtomicNoOverwrite(dir, FileName, data)
		}
		switch {
		case err == nil:
			r.Status = domain.FileStatusWritten
		case errors.Is(err, os.ErrExist):
			r.Status = domain.FileStatusExists
		default:
			r.Status = domain.FileStatusFailed
			r.Err = err
		}
		out = append(out, r)
	}
	return out, nil
}
