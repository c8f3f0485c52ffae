// Package view はHTMLテンプレートの描画と画面文言を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/hitoshi/myftc/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// Renderer は埋め込みテンプレートからページを描画する。
// テンプレートは起動時に1回だけパースされる。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer はすべてのページテンプレートをパースする。
func NewRenderer() (*Renderer, error) {
	base, err := template.New("layout").Funcs(funcMap()).ParseFS(templateFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".html")] = t
	}

	return &Renderer{pages: pages}, nil
}

// Has は指定した名前のページが存在するかどうかを返す。
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render はページを描画してレスポンスに書き込む。
// 実行エラー時に途中までのHTMLを返さないよう、バッファに描画してから書き込む。
// 存在しないページ名はプログラムの誤りなのでpanicする。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) {
	t, ok := r.pages[name]
	if !ok {
		panic(fmt.Sprintf("view: unknown page %q", name))
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "内部错误", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"tierName": func(t model.Tier) string {
			switch t {
			case model.TierStandard:
				return "标准会员"
			case model.TierPremium:
				return "高端会员"
			default:
				return "免费用户"
			}
		},
		"cycleName": func(c model.Cycle) string {
			switch c {
			case model.CycleYear:
				return "年"
			case model.CycleMonth:
				return "月"
			default:
				return ""
			}
		},
		"payMethodName": func(pm model.PayMethod) string {
			switch pm {
			case model.PayMethodAlipay:
				return "支付宝"
			case model.PayMethodWechat:
				return "微信支付"
			case model.PayMethodStripe:
				return "Stripe"
			case model.PayMethodApple:
				return "App Store"
			case model.PayMethodB2B:
				return "企业订阅"
			default:
				return string(pm)
			}
		},
		"price": func(v float64) string {
			return fmt.Sprintf("%.2f", v)
		},
		"fieldError": func(errs map[string]string, field string) string {
			return errs[field]
		},
	}
}
