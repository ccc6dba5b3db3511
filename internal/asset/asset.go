// Package asset 下载封面与预览图，并保证同名文件存在时不重复下载。
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/folderscrape/internal/infra/fsx"
	"github.com/John-Robertt/folderscrape/internal/logging"
)

// DefaultExt 是 URL 路径没有扩展名时使用的扩展名。
const DefaultExt = ".jpg"

// Result 描述一次 FetchIfAbsent 的结果。
type Result struct {
	Path    string
	Skipped bool // 目标已存在，未发起请求
	Bytes   int64
}

// StatusError 表示图片服务器返回了非 200。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("下载失败：HTTP %d：%s", e.StatusCode, e.URL)
}

// Fetcher 是无状态的下载器；一个 run 共享同一个 http.Client。
type Fetcher struct {
	Client *http.Client
	Logger *slog.Logger
}

// FetchIfAbsent 下载 rawURL 到 dst。
//
// 规则：
// - dst 已存在：不发请求，直接返回 Skipped=true
// - 非 200：返回 *StatusError，不落盘
// - 写入走同目录临时文件 + rename，失败时不会留下半截文件
func (f Fetcher) FetchIfAbsent(ctx context.Context, rawURL, dst string) (Result, error) {
	res := Result{Path: dst}
	if strings.TrimSpace(rawURL) == "" {
		return res, errors.New("url 不能为空")
	}
	if f.Client == nil {
		return res, errors.New("http client 不能为空")
	}

	if _, err := os.Lstat(dst); err == nil {
		res.Skipped = true
		f.logger().Debug("图片已存在，跳过", slog.String("path", dst))
		return res, nil
	} else if !os.IsNotExist(err) {
		return res, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return res, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return res, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	n, err := fsx.WriteStreamNoOverwrite(filepath.Dir(dst), filepath.Base(dst), resp.Body)
	if errors.Is(err, os.ErrExist) {
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Bytes = n
	f.logger().Info("图片已下载",
		slog.String("path", dst),
		slog.String("url", rawURL),
		slog.String("size", humanize.Bytes(uint64(n))),
	)
	return res, nil
}

func (f Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return logging.Discard()
	}
	return f.Logger
}

// ExtFromURL 取 URL 路径部分的扩展名（保留原大小写，忽略 query/fragment）。
// 没有扩展名时返回 DefaultExt。
func ExtFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" || ext == "." || strings.ContainsAny(ext, `/\`) {
		return DefaultExt
	}
	return ext
}

// PosterName 返回封面文件名：poster<ext>。
func PosterName(rawURL string) string {
	return "poster" + ExtFromURL(rawURL)
}

// BackdropName 返回第 n 张预览图（从 1 开始）的文件名：backdrop<n><ext>。
func BackdropName(n int, rawURL string) string {
	return fmt.Sprintf("backdrop%d%s", n, ExtFromURL(rawURL))
}
