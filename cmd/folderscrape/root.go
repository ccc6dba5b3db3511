package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/folderscrape/internal/app"
	"github.com/John-Robertt/folderscrape/internal/app/run"
	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/infra/fsx"
	"github.com/John-Robertt/folderscrape/internal/logging"
)

// LockFileName 是 base 目录下的单实例锁文件（只在 apply 模式创建）。
const LockFileName = ".folderscrape.lock"

// cli 收拢命令行层的全部外部依赖，测试通过替换字段来隔离终端与网络。
type cli struct {
	stdout io.Writer
	stderr io.Writer

	getwd func() (string, error)

	// httpClient 为 nil 时由 run 层按配置构造。
	httpClient *http.Client
	// progress 为 nil 时按终端自动选择；测试可强制注入。
	progress func() (io.Writer, bool)
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		getwd:  os.Getwd,
	}
}

type runFlags struct {
	provider   string
	apply      bool
	configFile string
	report     string
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "folderscrape",
		Short:         "按目录名刮削元数据，下载图片、写 movie.nfo 并规范化目录名",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.AddCommand(c.runCommand())
	return root
}

func (c *cli) runCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "处理 path 下的每个子目录（默认 dry-run）",
		Long: `处理 path 下的每个一级子目录：提取 ID -> 解析元数据 -> 下载图片 -> 改名 -> 写 movie.nfo。

未给出 path 时读取当前目录下的 folderscrape.toml（必须包含 path）。
默认 dry-run：只解析与规划，不下载、不改名、不写文件。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca := config.CLIArgs{
				ConfigFile:  f.configFile,
				Provider:    strings.ToLower(strings.TrimSpace(f.provider)),
				ProviderSet: cmd.Flags().Changed("provider"),
				Apply:       f.apply,
				ApplySet:    cmd.Flags().Changed("apply"),
			}
			if len(args) == 1 {
				ca.Path = args[0]
			}
			if ca.ProviderSet && !slices.Contains(config.Providers, ca.Provider) {
				return fmt.Errorf("--provider 只能是 %s，实际是 %q", strings.Join(config.Providers, "|"), f.provider)
			}
			return c.run(cmd, ca, f.report)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.provider, "provider", "", "profile："+strings.Join(config.Providers, "|")+"（未指定则读配置文件；最终默认 getchu）")
	fl.BoolVar(&f.apply, "apply", false, "执行下载/改名/写入（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true")
	fl.StringVarP(&f.configFile, "config", "c", "", "配置文件路径（指定后不再按目录发现）")
	fl.StringVar(&f.report, "report", "", "把 RunReport JSON 原子写入该文件")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, ca config.CLIArgs, reportPath string) error {
	cwd, err := c.getwd()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		rr := reportForConfigError(cwdAbs, ca, err)
		c.emitReport(rr)
		return &exitError{code: 1}
	}

	log := logging.New(logging.Options{Level: eff.LogLevel, Format: eff.LogFormat, Writer: c.stderr})
	log.Debug("配置已加载", slog.String("config", eff.ConfigPath), slog.String("path", eff.Path))

	if eff.Apply {
		unlock, err := acquireRunLock(eff.Path)
		if err != nil {
			return &exitError{code: 1, err: err}
		}
		defer unlock()
	}

	reg, err := app.NewRegistry(eff)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("初始化 provider registry 失败：%w", err)}
	}

	pick := c.progress
	if pick == nil {
		pick = c.pickProgressWriter
	}
	progressW, interactive := pick()
	var ui *progressUI
	r := run.Runner{Config: eff, Registry: reg, HTTPClient: c.httpClient, Logger: log}
	if interactive {
		ui = newProgressUI(progressW, logging.IsTerminal(progressW))
		r.Observer = ui
	}

	rr := r.Run(cmd.Context())
	if ui != nil {
		ui.Close()
	}

	if reportPath != "" {
		abs := reportPath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cwdAbs, abs)
		}
		if err := writeReportFile(abs, rr); err != nil {
			fmt.Fprintf(c.stderr, "写入 report 失败：%v\n", err)
			c.emitReport(rr)
			return &exitError{code: 1}
		}
	}

	c.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, reportPath)
	}
	if rr.Summary.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// acquireRunLock 获取 base 目录的单实例锁。
//
// 规则：
// - base 目录不存在时不加锁（run 层会把它报告为 io_failed）
// - 锁被占用时立即失败，不等待
func acquireRunLock(root string) (func(), error) {
	lock := flock.New(filepath.Join(root, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return func() {}, nil
		}
		return nil, fmt.Errorf("获取运行锁失败：%w", err)
	}
	if !ok {
		return nil, fmt.Errorf("另一个 folderscrape 正在处理 %s（锁文件 %s）", root, lock.Path())
	}
	return func() { _ = lock.Unlock() }, nil
}

// emitReport 输出 run 结果。
//
// 约束：stdout 非终端时，stdout 只输出一个 RunReport JSON，摘要走 stderr。
func (c *cli) emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：processed=%d skipped=%d failed=%d unmatched=%d",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unmatched,
	)
	if !logging.IsTerminal(c.stdout) {
		_ = json.NewEncoder(c.stdout).Encode(rr)
		fmt.Fprintln(c.stderr, summary)
		return
	}

	fmt.Fprintln(c.stdout, summary)
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
			continue
		}
		key := it.Folder
		if key == "" {
			key = "<run>"
		}
		fmt.Fprintf(c.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
	}
}

func reportForConfigError(cwdAbs string, ca config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		Provider:   ca.Provider,
		DryRun:     !(ca.ApplySet && ca.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Files:     []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if logging.IsTerminal(c.stderr) {
		return c.stderr, true
	}
	if logging.IsTerminal(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, reportPath string) {
	if w == nil {
		return
	}
	if reportPath != "" {
		fmt.Fprintf(w, "report: %s\n", reportPath)
	}
	fmt.Fprintf(w, "path: %s\n", eff.Path)
}
