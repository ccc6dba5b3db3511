package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
)

func TestProgressUI_ItemLines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf, false)

	p.OnStart(config.EffectiveConfig{Path: "/lib", Provider: "getchu", Rename: true, ServiceURL: "http://127.0.0.1:8080"}, "rid")
	p.OnPhaseDone("list", map[string]any{"entries": 3, "folders": 2}, time.Second)
	p.OnItemDone(1, 2, domain.ItemResult{
		Folder:  "item1",
		ItemID:  "1",
		NewName: "[GETCHU-1]T",
		Status:  domain.StatusProcessed,
		Files: []domain.FileResult{
			{Path: "a", Status: domain.FileStatusDownloaded},
			{Path: "b", Status: domain.FileStatusDownloaded},
			{Path: "c", Status: domain.FileStatusExists},
		},
	}, 0)
	p.OnItemDone(2, 2, domain.ItemResult{
		Folder:    "item2",
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeFetchFailed,
		ErrorMsg:  "HTTP 500",
	}, 0)
	p.Close()

	out := buf.String()
	for _, want := range []string{
		"folderscrape run (dry-run) rid",
		"service_url: http://127.0.0.1:8080",
		"列举: entries=3 folders=2",
		"[1/2] item1 OK id=1 -> [GETCHU-1]T files=downloaded=2,exists=1",
		"[2/2] item2 FAIL fetch_failed: HTTP 500",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("期望输出包含 %q，实际：\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("非彩色模式不应输出 ANSI 转义：%q", out)
	}
}

func TestProgressUI_KeepaliveAndStop(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf, false)
	p.tickerInterval = 5 * time.Millisecond
	p.keepaliveThreshold = time.Millisecond

	p.OnStart(config.EffectiveConfig{Path: "/lib", Provider: "gyutto"}, "rid")
	p.OnPhaseDone("list", map[string]any{"entries": 1, "folders": 1}, 0)

	deadline := time.Now().Add(2 * time.Second)
	for {
		p.mu.Lock()
		got := strings.Contains(buf.String(), "进度: done=0/1")
		p.mu.Unlock()
		if got {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("期望出现 keepalive 行")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.OnItemDone(1, 1, domain.ItemResult{Folder: "x", Status: domain.StatusUnmatched, ErrorCode: domain.ErrCodeUnmatchedID}, 0)
	p.mu.Lock()
	started := p.tickerStarted
	p.mu.Unlock()
	if started {
		t.Fatalf("最后一条完成后 ticker 应停止")
	}
	// 重复 Close 不应 panic。
	p.Close()
}

func TestFormatProxy(t *testing.T) {
	if got := formatProxy(""); got != "off" {
		t.Fatalf("期望 off，实际 %q", got)
	}
	if got := formatProxy("http://u:p@127.0.0.1:7890"); got != "on (http://127.0.0.1:7890, auth=on)" {
		t.Fatalf("实际 %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 5); got != "ab..." {
		t.Fatalf("期望 ab...，实际 %q", got)
	}
	if got := truncate(" abc ", 10); got != "abc" {
		t.Fatalf("期望 abc，实际 %q", got)
	}
}
