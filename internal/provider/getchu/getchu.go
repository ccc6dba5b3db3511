package getchu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/folderscrape/internal/domain"
	"github.com/John-Robertt/folderscrape/internal/provider/metatube"
)

// ServiceProvider 是元数据服务中 Getchu 数据源的 provider 段。
const ServiceProvider = "Getchu"

// Resolver 通过元数据服务按 ID 直取 Getchu 条目。
//
// 约束：
// - 只请求一次详情接口，不搜索
// - label 不做回退（写入 NFO 的 director 即服务端 label）
// - 服务端未给出 number 时用 GETCHU-{id} 补齐
type Resolver struct {
	Service metatube.Client
}

func (Resolver) Name() string { return "getchu" }

func (r Resolver) Resolve(ctx context.Context, id string, c *http.Client) (domain.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Record{}, errors.New("id 不能为空")
	}
	m, err := r.Service.Movie(ctx, c, ServiceProvider, id)
	if err != nil {
		return domain.Record{}, err
	}
	rec := m.Record()
	if strings.TrimSpace(rec.Number) == "" {
		rec.Number = "GETCHU-" + id
	}
	if strings.TrimSpace(rec.Provider) == "" {
		rec.Provider = ServiceProvider
	}
	return rec, nil
}

// Guess 按站点的图片目录规则拼出封面与三张预览图的 URL（不访问网络）。
//
// 目录段是 ID 去掉最后两位；ID 不足三位时目录段为空。
func (Resolver) Guess(id string) (string, []string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	base := fmt.Sprintf("https://dl.getchu.com/data/item_img/%s/%s/", bucket(id), id)
	previews := make([]string, 0, 3)
	for n := 2977; n <= 2979; n++ {
		previews = append(previews, fmt.Sprintf("%s%s_%d.jpg", base, id, n))
	}
	return base + id + "top.jpg", previews
}

func bucket(id string) string {
	if len(id) <= 2 {
		return ""
	}
	return id[:len(id)-2]
}
