package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/domain"
)

// ScanVideos 递归扫描 root 下的视频文件。
//
// 规则：
// - 扩展名判断不区分大小写（.mp4 .mkv .avi .mov .wmv）
// - 只做 stat（DirEntry.Info），不读文件内容
// - 输出按 RelPath 排序
func ScanVideos(root string) ([]domain.VideoFile, error) {
	root = filepath.Clean(root)

	files := make([]domain.VideoFile, 0, 8)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !IsVideoExt(ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.VideoFile{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Dir:     filepath.Dir(path),
			Ext:     ext,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// VideoDirs 返回 root 下所有“直接包含视频文件”的目录（去重）。
//
// 排序：先按相对 root 的深度，再按路径字典序；因此第一项就是最浅的那个视频目录。
// 没有任何视频文件时返回空切片（由调用方决定回退到 root）。
func VideoDirs(root string) ([]string, error) {
	root = filepath.Clean(root)
	files, err := ScanVideos(root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(files))
	dirs := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f.Dir]; ok {
			continue
		}
		seen[f.Dir] = struct{}{}
		dirs = append(dirs, f.Dir)
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		di, dj := depth(root, dirs[i]), depth(root, dirs[j])
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs, nil
}

// IsVideoExt 判断扩展名（含点，小写）是否属于可识别的视频格式。
func IsVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".wmv":
		return true
	default:
		return false
	}
}

func depth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
