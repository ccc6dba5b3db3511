package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/folderscrape/internal/domain"
)

// Resolver 把“站点/接口变化”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 Record。
//
// 约束：
// - Resolve 不做缓存、不做重试（网络策略由 httpx 统一实现）
// - 任何 error 都等价于“元数据缺失”：上层记录日志并继续，不会终止整个 run
// - 单个字段缺失不报错，字段置空即可
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, key string, c *http.Client) (domain.Record, error)
}

// Guesser 由能够按 ID 拼出图片 URL 的 resolver 实现（不访问网络）。
// 元数据缺失时，上层可用它继续下载封面/预览图。
type Guesser interface {
	Guess(key string) (coverURL string, previewURLs []string)
}
