// Package logging 构造整个进程共用的 *slog.Logger。
//
// 终端（TTY）上输出带颜色的单行格式，其余情况（重定向到文件/管道）输出 JSON。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	FormatAuto   = "auto"
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// Options 是 logger 的构造参数；零值可用（info 级别、auto 格式、stderr）。
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New 按 Options 构造 logger。
//
// 规则：
// - Format=auto：Writer 是终端时用 pretty，否则 json
// - pretty 只在 Writer 是终端时着色（pretty + 非终端 = 无色单行）
func New(opt Options) *slog.Logger {
	w := opt.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opt.Level)}

	tty := IsTerminal(w)
	format := strings.ToLower(strings.TrimSpace(opt.Format))
	if format == "" || format == FormatAuto {
		if tty {
			format = FormatPretty
		} else {
			format = FormatJSON
		}
	}

	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(NewPrettyHandler(w, hopts, tty))
}

// Discard 返回丢弃所有输出的 logger（测试与未注入 logger 时使用）。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel 把配置中的级别字符串转为 slog.Level；未知值按 info 处理。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsTerminal 判断 w 是否为交互式终端（只识别 *os.File）。
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// PrettyHandler 输出 "15:04:05 LEVEL message key=value ..." 单行格式。
type PrettyHandler struct {
	opts   *slog.HandlerOptions
	colors palette
	attrs  []slog.Attr
	group  string

	mu *sync.Mutex
	w  io.Writer
}

type palette struct {
	dim, debug, info, warn, err, msg, key *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		dim:   color.New(color.Faint),
		debug: color.New(color.FgMagenta),
		info:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		err:   color.New(color.FgHiRed, color.Bold),
		msg:   color.New(color.Bold),
		key:   color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.dim, p.debug, p.info, p.warn, p.err, p.msg, p.key} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// NewPrettyHandler 创建 pretty handler；colored=false 时输出纯文本。
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions, colored bool) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{
		opts:   opts,
		colors: newPalette(colored),
		mu:     &sync.Mutex{},
		w:      w,
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(h.colors.dim.Sprint(ts.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(h.levelColor(r.Level).Sprintf("%-5s", r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(h.colors.msg.Sprint(r.Message))

	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		b.WriteByte(' ')
		b.WriteString(h.colors.key.Sprint(a.Key + "="))
		b.WriteString(formatValue(a.Value))
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		write(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group == "" {
		h2.group = name
	} else {
		h2.group = h.group + "." + name
	}
	return &h2
}

func (h *PrettyHandler) levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return h.colors.err
	case l >= slog.LevelWarn:
		return h.colors.warn
	case l >= slog.LevelInfo:
		return h.colors.info
	default:
		return h.colors.debug
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindGroup:
		parts := make([]string, 0, len(v.Group()))
		for _, a := range v.Group() {
			parts = append(parts, a.Key+"="+formatValue(a.Value))
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return v.String()
	}
}
