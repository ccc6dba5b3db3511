package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Transport 把“UA 池 + 代理 + 请求节流”固化为统一策略。
//
// 设计目标：resolver 只负责“定位页面/接口 + 解析响应”，不关心网络策略细节。
// 不做重试：失败直接返回，由上层记录日志并继续下一个目录。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// Limiter 为 nil 表示不节流。
	Limiter *rate.Limiter
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.random())
	}
	return t.Base.RoundTrip(r)
}

// Options 描述 HTTP client 的可配置部分。
type Options struct {
	// ProxyURL 非空：所有请求（元数据与图片）都走该代理。
	ProxyURL string
	// Interval 是相邻请求的最小间隔；<=0 表示不节流。
	Interval time.Duration
}

// NewClient 构造一次 run 共用的 HTTP client（元数据接口、详情页、图片下载共用）。
//
// 规则：
// - 内置 UA 池：每个请求随机 UA（调用方显式设置的 UA 优先）
// - proxyURL 非空：走代理，且禁用 keep-alive（代理池轮换依赖每请求新连接）
// - Interval>0：按 rate.Every(Interval) 节流，突发为 1
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	proxyURL := strings.TrimSpace(opts.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	tr := &Transport{
		Base: base,
		ua:   globalUA,
	}
	if opts.Interval > 0 {
		tr.Limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}
	return &http.Client{
		Transport: tr,
		Timeout:   defaultTimeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
