package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanVideos_Recursive(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "disc1", "a.mp4"))
	touch(t, filepath.Join(root, "disc1", "sub", "b.wmv"))
	touch(t, filepath.Join(root, "notes.txt"))

	got, err := ScanVideos(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个视频文件，实际 %d", len(got))
	}
	wantRel := "disc1/a.mp4"
	if got[0].RelPath != wantRel {
		t.Fatalf("期望 rel=%q，实际=%q", wantRel, got[0].RelPath)
	}
	if got[1].Dir != filepath.Join(root, "disc1", "sub") {
		t.Fatalf("期望 dir=%q，实际=%q", filepath.Join(root, "disc1", "sub"), got[1].Dir)
	}
}

func TestScanVideos_ExtCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "X.MOV"))

	got, err := ScanVideos(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个视频文件，实际 %d", len(got))
	}
	if got[0].Ext != ".mov" {
		t.Fatalf("期望 ext=.mov，实际=%q", got[0].Ext)
	}
}

func TestVideoDirs_NoVideo(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "cover.jpg"))

	got, err := VideoDirs(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("期望无视频目录，实际 %v", got)
	}
}

func TestVideoDirs_ShallowestFirstAndDedup(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b", "deep", "x.mkv"))
	touch(t, filepath.Join(root, "z", "1.mp4"))
	touch(t, filepath.Join(root, "z", "2.mp4"))
	touch(t, filepath.Join(root, "a", "1.avi"))

	got, err := VideoDirs(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "z"),
		filepath.Join(root, "b", "deep"),
	}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("期望 [%d]=%q，实际=%q", i, want[i], got[i])
		}
	}
}

func TestVideoDirs_RootItself(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "movie.mp4"))

	got, err := VideoDirs(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0] != filepath.Clean(root) {
		t.Fatalf("期望 [%q]，实际 %v", root, got)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
