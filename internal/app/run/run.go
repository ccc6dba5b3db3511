package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/folderscrape/internal/app"
	"github.com/John-Robertt/folderscrape/internal/app/planner"
	"github.com/John-Robertt/folderscrape/internal/asset"
	"github.com/John-Robertt/folderscrape/internal/config"
	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/infra/fsx"
	"github.com/John-Robertt/folderscrape/internal/infra/httpx"
	"github.com/John-Robertt/folderscrape/internal/logging"
	"github.com/John-Robertt/folderscrape/internal/provider"
	"github.com/John-Robertt/folderscrape/internal/sidecar"
)

// Runner 持有一次 run 的全部依赖；零值字段有合理默认（见 Run）。
type Runner struct {
	Config   config.EffectiveConfig
	Registry provider.Registry

	// HTTPClient 为 nil 时按配置（proxy/request_interval）构造。
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, reg, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, obs Observer) domain.RunReport {
	return Runner{Config: eff, Registry: reg, Observer: obs}.Run(ctx)
}

// Run 列举一次 base 目录，然后逐个目录顺序处理。
//
// 规则：
// - 只读取一次顶层列表；非目录条目静默跳过
// - 任何单目录错误都只影响该目录的 ItemResult，不会终止 run
// - dry-run 只做解析与规划，不下载、不改名、不写 sidecar
func (r Runner) Run(ctx context.Context) domain.RunReport {
	eff := r.Config
	runID := uuid.NewString()
	log := r.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With(slog.String("run_id", runID))

	if r.Observer != nil {
		r.Observer.OnStart(eff, runID)
	}

	rr := domain.RunReport{
		RunID:     runID,
		Path:      eff.Path,
		Provider:  eff.Provider,
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		log.Info("run 结束",
			slog.Bool("dry_run", rr.DryRun),
			slog.Int("processed", rr.Summary.Processed),
			slog.Int("skipped", rr.Summary.Skipped),
			slog.Int("failed", rr.Summary.Failed),
			slog.Int("unmatched", rr.Summary.Unmatched),
		)
		return rr
	}

	profile, err := app.ProfileFor(eff)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, err.Error()))
		return finish()
	}

	client := r.HTTPClient
	if client == nil {
		client, err = httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL, Interval: eff.RequestInterval})
		if err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy_url 无效：%v", err)))
			return finish()
		}
	}

	log.Info("run 开始",
		slog.String("path", eff.Path),
		slog.String("provider", profile.Name),
		slog.Bool("apply", eff.Apply),
		slog.Bool("rename", profile.Plan.Rename),
	)

	listStarted := time.Now()
	entries, err := os.ReadDir(eff.Path)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取目录失败：%v", err)))
		return finish()
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if r.Observer != nil {
		r.Observer.OnPhaseDone("list", map[string]any{
			"entries": len(entries),
			"folders": len(dirs),
		}, time.Since(listStarted))
	}

	p := pipeline{
		eff:     eff,
		profile: profile,
		reg:     r.Registry,
		client:  client,
		fetcher: asset.Fetcher{Client: client, Logger: log},
	}
	for i, name := range dirs {
		if err := ctx.Err(); err != nil {
			log.Warn("run 被取消", slog.String("error", err.Error()))
			break
		}
		oneStarted := time.Now()
		ilog := log.With(slog.String("folder", name), slog.String("provider", profile.Name))
		item := p.processOne(ctx, ilog, name)
		rr.Items = append(rr.Items, item)
		if r.Observer != nil {
			r.Observer.OnItemDone(i+1, len(dirs), item, time.Since(oneStarted))
		}
	}
	return finish()
}

type pipeline struct {
	eff     config.EffectiveConfig
	profile app.Profile
	reg     provider.Registry
	client  *http.Client
	fetcher asset.Fetcher
}

// processOne 处理单个顶层目录：ID -> 元数据 -> 规划 -> 图片 -> 改名 -> sidecar。
func (p pipeline) processOne(ctx context.Context, log *slog.Logger, name string) domain.ItemResult {
	root := p.eff.Path
	item := domain.ItemResult{
		Folder:   name,
		Provider: p.profile.Name,
		Status:   domain.StatusProcessed,
		Files:    []domain.FileResult{},
	}

	id, ok := p.profile.Extractor.Extract(name)
	if !ok {
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeUnmatchedID
		item.ErrorMsg = fmt.Sprintf("目录名无法解析出 %s 的 ID", p.profile.Name)
		log.Info("目录名未匹配，跳过")
		return item
	}
	item.ItemID = id
	log = log.With(slog.String("item_id", id))

	task := domain.FolderTask{Name: name, Path: filepath.Join(root, name), ItemID: id}

	var guess planner.Guess
	rec, err := provider.Resolve(ctx, p.reg, p.profile.Resolver, id, p.client)
	if err != nil {
		g, canGuess := p.guess(id)
		if !canGuess {
			fillResolveError(&item, err)
			log.Warn("元数据缺失，跳过", slog.String("error_code", item.ErrorCode), slog.String("error", err.Error()))
			return item
		}
		guess = g
		item.Guessed = true
		log.Warn("元数据缺失，改用猜测的图片地址", slog.String("error", err.Error()))
	} else {
		task.Record = &rec
		item.Number = rec.Number
		if rec.Provider != "" {
			item.Provider = rec.Provider
		}
	}

	plan, err := planner.PlanFolder(task, guess, p.profile.Plan)
	if err != nil {
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeNotFound
		item.ErrorMsg = err.Error()
		log.Warn("无可执行内容，跳过", slog.String("error", err.Error()))
		return item
	}
	if plan.Renames() {
		item.NewName = filepath.Base(plan.DstAbs)
	}

	if !p.eff.Apply {
		item.Files = p.plannedFiles(plan)
		log.Info("已规划", slog.String("new_name", item.NewName), slog.Int("assets", len(plan.Assets)))
		return item
	}

	// 1) 图片：写入原目录；单张失败只记录，不影响后续步骤。
	type fetched struct {
		a  domain.AssetPlan
		st string
	}
	got := make([]fetched, 0, len(plan.Assets))
	for _, a := range plan.Assets {
		res, err := p.fetcher.FetchIfAbsent(ctx, a.URL, a.DstAbs)
		st := domain.FileStatusDownloaded
		switch {
		case err != nil:
			st = domain.FileStatusFailed
			log.Warn("图片下载失败", slog.String("url", a.URL), slog.String("error", err.Error()))
		case res.Skipped:
			st = domain.FileStatusExists
		}
		got = append(got, fetched{a: a, st: st})
	}

	// 2) 改名：失败时后续 sidecar 写到原目录。
	final := plan.SrcAbs
	if plan.Renames() {
		if err := fsx.RenameNoReplace(plan.SrcAbs, plan.DstAbs); err != nil {
			item.Status = domain.StatusFailed
			if errors.Is(err, os.ErrExist) {
				item.ErrorCode = domain.ErrCodeRenameConflict
			} else {
				item.ErrorCode = domain.ErrCodeIOFailed
			}
			item.ErrorMsg = fmt.Sprintf("改名失败：%v", err)
			item.NewName = ""
			log.Warn("改名失败", slog.String("dst", plan.DstAbs), slog.String("error", err.Error()))
		} else {
			final = plan.DstAbs
			log.Info("目录已改名", slog.String("new_name", filepath.Base(final)))
		}
	}

	for _, f := range got {
		item.Files = append(item.Files, domain.FileResult{
			Path:   relTo(root, filepath.Join(final, filepath.Base(f.a.DstAbs))),
			URL:    f.a.URL,
			Status: f.st,
		})
	}

	// 3) sidecar：按改名后的实际位置解析目标目录。
	if plan.WriteSidecar && task.Record != nil {
		results, err := p.profile.Sidecar.Write(*task.Record, final)
		if err != nil {
			if item.Status != domain.StatusFailed {
				item.Status = domain.StatusFailed
				item.ErrorCode = domain.ErrCodeIOFailed
				item.ErrorMsg = fmt.Sprintf("写入 sidecar 失败：%v", err)
			}
			log.Warn("写入 sidecar 失败", slog.String("error", err.Error()))
		}
		for _, sr := range results {
			item.Files = append(item.Files, domain.FileResult{Path: relTo(root, sr.Path), Status: sr.Status})
			if sr.Err != nil {
				if item.Status != domain.StatusFailed {
					item.Status = domain.StatusFailed
					item.ErrorCode = domain.ErrCodeIOFailed
					item.ErrorMsg = fmt.Sprintf("写入 sidecar 失败：%v", sr.Err)
				}
				log.Warn("写入 sidecar 失败", slog.String("path", sr.Path), slog.String("error", sr.Err.Error()))
			}
		}
	}

	log.Info("已处理", slog.String("status", item.Status), slog.Int("files", len(item.Files)))
	return item
}

// guess 返回猜测的图片地址；profile 不允许或 resolver 不支持时 ok=false。
func (p pipeline) guess(id string) (planner.Guess, bool) {
	if !p.profile.GuessOnAbsent {
		return planner.Guess{}, false
	}
	r, ok := p.reg.Get(p.profile.Resolver)
	if !ok {
		return planner.Guess{}, false
	}
	g, ok := r.(provider.Guesser)
	if !ok {
		return planner.Guess{}, false
	}
	cover, previews := g.Guess(id)
	out := planner.Guess{CoverURL: cover, PreviewURLs: previews}
	if strings.TrimSpace(cover) == "" && len(previews) == 0 {
		return planner.Guess{}, false
	}
	return out, true
}

// plannedFiles 在 dry-run 下列出将会产生的文件（路径为执行后的最终位置）。
func (p pipeline) plannedFiles(plan domain.FolderPlan) []domain.FileResult {
	root := p.eff.Path
	out := make([]domain.FileResult, 0, len(plan.Assets)+1)
	for _, a := range plan.Assets {
		out = append(out, domain.FileResult{
			Path:   relTo(root, filepath.Join(plan.DstAbs, filepath.Base(a.DstAbs))),
			URL:    a.URL,
			Status: domain.FileStatusPlanned,
		})
	}
	if !plan.WriteSidecar {
		return out
	}
	targets, err := p.profile.Sidecar.Targets(plan.SrcAbs)
	if err != nil {
		return out
	}
	for _, dir := range targets {
		rel, err := filepath.Rel(plan.SrcAbs, dir)
		if err != nil {
			continue
		}
		out = append(out, domain.FileResult{
			Path:   relTo(root, filepath.Join(plan.DstAbs, rel, sidecar.FileName)),
			Status: domain.FileStatusPlanned,
		})
	}
	return out
}

// fillResolveError 把 resolver 错误映射为 item 状态。
// not_found / unavailable 是正常的“元数据缺失”，记为 skipped；其余记为 failed。
func fillResolveError(item *domain.ItemResult, err error) {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeFetchFailed
		item.ErrorMsg = err.Error()
		return
	}

	switch pe.Stage {
	case provider.StageNotFound:
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeNotFound
		item.ErrorMsg = fmt.Sprintf("%s 没有该条目的数据", pe.Provider)
	case provider.StageUnavailable:
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeUnavailable
		item.ErrorMsg = fmt.Sprintf("%s 页面显示该条目已下架", pe.Provider)
	case provider.StageParse:
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeParseFailed
		item.ErrorMsg = fmt.Sprintf("%s 解析失败（页面结构可能变化或字段缺失）：%v", pe.Provider, pe.Err)
	default:
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeFetchFailed
		item.ErrorMsg = humanizeFetchError(pe.Provider, pe.Err)
	}
}

func humanizeFetchError(providerName string, err error) string {
	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发限流）。建议设置 request_interval 或配置 proxy_url。", providerName, hs.StatusCode)
		case 404:
			return fmt.Sprintf("%s 返回 HTTP 404（该条目可能不存在）。", providerName)
		default:
			return fmt.Sprintf("%s 返回 HTTP %d。", providerName, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 请求超时。建议检查网络/代理后重试。", providerName)
	}
	if strings.Contains(low, "connection refused") {
		return fmt.Sprintf("%s 连接被拒绝。请确认 service_url 指向的元数据服务已启动。", providerName)
	}
	return fmt.Sprintf("%s 请求失败：%v", providerName, err)
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}

func relTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
