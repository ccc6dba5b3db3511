package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 folderscrape.toml。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

// FileName 是配置文件的固定文件名。
const FileName = "folderscrape.toml"

const (
	// DefaultProvider 是 provider 的最终默认值（当 CLI 与配置文件都未指定时）。
	DefaultProvider   = "getchu"
	DefaultServiceURL = "http://127.0.0.1:8080"
	DefaultSiteURL    = "https://gyutto.com"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "auto"
)

// Providers 是可选的 provider 名称（同时也是 profile 名称）。
var Providers = []string{"getchu", "gyutto", "search"}

// CLIArgs 只包含 CLI 暴露的入口（path/provider/apply/config），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	// ConfigFile 非空时只读取该文件（必须存在），不再按目录发现。
	ConfigFile string

	Provider    string
	ProviderSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 folderscrape.toml 的解析结构。
type FileConfig struct {
	Path            string `toml:"path"`
	Provider        string `toml:"provider"`
	Apply           *bool  `toml:"apply"`
	Rename          *bool  `toml:"rename"`
	ServiceURL      string `toml:"service_url"`
	SiteURL         string `toml:"site_url"`
	ProxyURL        string `toml:"proxy_url"`
	RequestInterval string `toml:"request_interval"`
	GuessOnAbsent   *bool  `toml:"guess_on_absent"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取（或尝试读取）的配置文件路径；仅用于日志。
	ConfigPath string

	Path string

	Provider string
	Apply    bool
	Rename   bool

	ServiceURL      string
	SiteURL         string
	ProxyURL        string
	RequestInterval time.Duration

	// GuessOnAbsent 为 nil 表示沿用 profile 的默认策略。
	GuessOnAbsent *bool

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 0) CLI 提供 --config：只读该文件（必选）
// 1) CLI 提供 path：尝试读取 <path>/folderscrape.toml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/folderscrape.toml（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - provider：CLI > config > 默认 getchu
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cliPath := strings.TrimSpace(cli.Path)

	var cfgPath string
	required := false
	switch {
	case strings.TrimSpace(cli.ConfigFile) != "":
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		required = true
	case cliPath != "":
		cfgPath = filepath.Join(absCleanFrom(cwdAbs, cliPath), FileName)
	default:
		cfgPath = filepath.Join(cwdAbs, FileName)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && required {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	var absPath string
	switch {
	case cliPath != "":
		absPath = absCleanFrom(cwdAbs, cliPath)
	case strings.TrimSpace(fc.Path) != "":
		// 配置文件中的相对 path 以配置文件所在目录为基准。
		absPath = absCleanFrom(filepath.Dir(cfgPath), fc.Path)
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// provider：CLI > config > 默认
	provider := DefaultProvider
	if cli.ProviderSet {
		provider = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		provider = fc.Provider
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if err := validateProvider(provider); err != nil {
		return invalid(err)
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	rename := true
	if fc.Rename != nil {
		rename = *fc.Rename
	}

	serviceURL, err := httpURL("service_url", fc.ServiceURL, DefaultServiceURL)
	if err != nil {
		return invalid(err)
	}
	siteURL, err := httpURL("site_url", fc.SiteURL, DefaultSiteURL)
	if err != nil {
		return invalid(err)
	}

	proxyURL := strings.TrimSpace(fc.ProxyURL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy_url 无效：%w", err))
		}
	}

	var interval time.Duration
	if s := strings.TrimSpace(fc.RequestInterval); s != "" {
		interval, err = time.ParseDuration(s)
		if err != nil {
			return invalid(fmt.Errorf("request_interval 无效：%w", err))
		}
		if interval < 0 {
			return invalid(fmt.Errorf("request_interval 不能为负：%q", s))
		}
	}

	logLevel := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	switch logLevel {
	case "":
		logLevel = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", fc.LogLevel))
	}

	logFormat := strings.ToLower(strings.TrimSpace(fc.LogFormat))
	switch logFormat {
	case "":
		logFormat = DefaultLogFormat
	case "auto", "pretty", "json":
	default:
		return invalid(fmt.Errorf("log_format 只能是 auto/pretty/json，实际是 %q", fc.LogFormat))
	}

	var guess *bool
	if fc.GuessOnAbsent != nil {
		v := *fc.GuessOnAbsent
		guess = &v
	}

	return EffectiveConfig{
		ConfigPath:      cfgPath,
		Path:            absPath,
		Provider:        provider,
		Apply:           apply,
		Rename:          rename,
		ServiceURL:      serviceURL,
		SiteURL:         siteURL,
		ProxyURL:        proxyURL,
		RequestInterval: interval,
		GuessOnAbsent:   guess,
		LogLevel:        logLevel,
		LogFormat:       logFormat,
	}, nil
}

func validateProvider(p string) error {
	if p == "" {
		return fmt.Errorf("provider 不能为空")
	}
	for _, name := range Providers {
		if p == name {
			return nil
		}
	}
	return fmt.Errorf("provider 只能是 %s，实际是 %q", strings.Join(Providers, "/"), p)
}

func httpURL(field, raw, def string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
// 未知字段视为错误，避免拼写错误被静默忽略。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
