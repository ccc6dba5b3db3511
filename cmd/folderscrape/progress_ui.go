package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/John-Robertt/folderscrape/internal/app/run"
	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端上的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个目录长时间未完成（大图下载、慢速服务）时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int
	miss  int

	okColor   *color.Color
	failColor *color.Color
	skipColor *color.Color
	dimColor  *color.Color

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, colored bool) *progressUI {
	p := &progressUI{
		w:                  w,
		okColor:            color.New(color.FgGreen),
		failColor:          color.New(color.FgRed, color.Bold),
		skipColor:          color.New(color.FgYellow),
		dimColor:           color.New(color.Faint),
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
	for _, c := range []*color.Color{p.okColor, p.failColor, p.skipColor, p.dimColor} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, runID string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不下载/不改名/不写入)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] folderscrape run (%s) %s\n", now.Format("15:04:05"), mode, p.dimColor.Sprint(runID))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  provider: %s\n", eff.Provider)
	fmt.Fprintf(p.w, "  rename: %s\n", onOff(eff.Rename))
	switch eff.Provider {
	case "gyutto":
		fmt.Fprintf(p.w, "  site_url: %s\n", truncate(eff.SiteURL, 120))
	default:
		fmt.Fprintf(p.w, "  service_url: %s\n", truncate(eff.ServiceURL, 120))
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.RequestInterval > 0 {
		fmt.Fprintf(p.w, "  request_interval: %s\n", eff.RequestInterval)
	}
	if eff.GuessOnAbsent != nil {
		fmt.Fprintf(p.w, "  guess_on_absent: %s\n", onOff(*eff.GuessOnAbsent))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "list":
		p.total = intField(fields, "folders")
		fmt.Fprintf(p.w, "列举: entries=%d folders=%d (%s)\n\n",
			intField(fields, "entries"), p.total, formatShortDuration(dur),
		)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	var status string
	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		status = p.okColor.Sprint("OK")
	case domain.StatusFailed:
		p.fail++
		status = p.failColor.Sprint("FAIL")
	case domain.StatusSkipped:
		p.skip++
		status = p.skipColor.Sprint("SKIP")
	case domain.StatusUnmatched:
		p.miss++
		status = p.dimColor.Sprint("UNMATCHED")
	default:
		status = strings.ToUpper(res.Status)
	}

	took := formatShortDuration(dur)
	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.Folder, status, res.ErrorCode, truncate(res.ErrorMsg, 160), took,
		)
	case domain.StatusSkipped, domain.StatusUnmatched:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			idx, total, res.Folder, status, res.ErrorCode, took,
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s id=%s%s files=%s (%s)\n",
			idx, total, res.Folder, status, res.ItemID, formatRename(res), formatFileCounts(res.Files), took,
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Close 停止 keepalive（run 被取消时最后一条 OnItemDone 不会到来）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d unmatched=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, p.miss, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatRename(res domain.ItemResult) string {
	name := strings.TrimSpace(res.NewName)
	if name == "" || name == res.Folder {
		return ""
	}
	return " -> " + truncate(name, 120)
}

// formatFileCounts 把文件结果压缩成 "downloaded=2,exists=1" 这样的计数串。
func formatFileCounts(files []domain.FileResult) string {
	if len(files) == 0 {
		return "0"
	}
	order := []string{
		domain.FileStatusPlanned,
		domain.FileStatusDownloaded,
		domain.FileStatusWritten,
		domain.FileStatusExists,
		domain.FileStatusFailed,
	}
	counts := map[string]int{}
	for _, f := range files {
		counts[f.Status]++
	}
	parts := make([]string, 0, len(order))
	for _, st := range order {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	return strings.Join(parts, ",")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
