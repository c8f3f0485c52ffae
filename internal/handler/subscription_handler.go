package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/paywall"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
	"github.com/hitoshi/myftc/internal/view"
)

// PaywallSource は購読ページの商品一覧を返す。
type PaywallSource interface {
	Get(ctx context.Context) (*model.Paywall, error)
}

// PaymentServiceInterface は決済開始に必要な上流APIの操作。
type PaymentServiceInterface interface {
	CreateOrder(ctx context.Context, a model.Account, plan model.Plan, method model.PayMethod, client model.ClientHeaders) (*model.PaymentIntent, error)
}

var (
	_ PaywallSource           = (*paywall.Cache)(nil)
	_ PaymentServiceInterface = (*reader.Client)(nil)
)

// SubscriptionHandler は購読ページと決済開始のHTTPハンドラー。
type SubscriptionHandler struct {
	*Presenter
	paywall       PaywallSource
	service       PaymentServiceInterface
	clientVersion string
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(p *Presenter, paywall PaywallSource, service PaymentServiceInterface, clientVersion string) *SubscriptionHandler {
	return &SubscriptionHandler{
		Presenter:     p,
		paywall:       paywall,
		service:       service,
		clientVersion: clientVersion,
	}
}

// Paywall は商品一覧を表示する。ログインは不要。
// GET /subscription
func (h *SubscriptionHandler) Paywall(w http.ResponseWriter, r *http.Request) {
	pw, err := h.paywall.Get(r.Context())
	if err != nil {
		h.upstreamFailure(w, r, "fetch_paywall", err)
		return
	}
	pg := h.page(r, "订阅会员")
	pg.Data = pw
	h.render(w, http.StatusOK, "subscription", pg)
}

// findPlan はURLのtierとcycleに一致する商品とプランを返す。
// 見つからない場合は404を描画してfalseを返す。
func (h *SubscriptionHandler) findPlan(w http.ResponseWriter, r *http.Request) (model.Product, model.Plan, bool) {
	tier := model.Tier(chi.URLParam(r, "tier"))
	cycle := model.Cycle(chi.URLParam(r, "cycle"))
	if !tier.IsValid() || !cycle.IsValid() {
		h.WriteError(w, r, http.StatusNotFound, model.NewPlanNotFoundError(tier, cycle))
		return model.Product{}, model.Plan{}, false
	}

	pw, err := h.paywall.Get(r.Context())
	if err != nil {
		h.upstreamFailure(w, r, "fetch_paywall", err)
		return model.Product{}, model.Plan{}, false
	}

	plan, ok := pw.FindPlan(tier, cycle)
	if !ok {
		h.WriteError(w, r, http.StatusNotFound, model.NewPlanNotFoundError(tier, cycle))
		return model.Product{}, model.Plan{}, false
	}
	for _, prod := range pw.Products {
		if prod.Tier == tier {
			return prod, plan, true
		}
	}
	return model.Product{Tier: tier}, plan, true
}

// PayForm は決済方法の選択フォームを表示する。
// GET /subscription/pay/{tier}/{cycle}
func (h *SubscriptionHandler) PayForm(w http.ResponseWriter, r *http.Request) {
	prod, plan, ok := h.findPlan(w, r)
	if !ok {
		return
	}
	pg := h.page(r, "选择支付方式")
	pg.Form = validation.PayForm{}
	pg.Data = view.PayData{Product: prod, Plan: plan}
	h.render(w, http.StatusOK, "pay", pg)
}

// Pay は注文を作成して決済を開始する。
// alipayは決済ページへリダイレクトし、wechatはQRコードを表示する。
// POST /subscription/pay/{tier}/{cycle}
func (h *SubscriptionHandler) Pay(w http.ResponseWriter, r *http.Request) {
	prod, plan, ok := h.findPlan(w, r)
	if !ok {
		return
	}
	s := session.MustFromContext(r.Context())

	var form validation.PayForm
	if err := validation.DecodeForm(r, &form); err != nil {
		h.WriteError(w, r, http.StatusBadRequest, model.NewInternalError())
		return
	}
	if errs := validation.Validate(form); errs != nil {
		pg := h.page(r, "选择支付方式")
		pg.Form = form
		pg.Errors = h.messages.FieldErrors(errs)
		pg.Data = view.PayData{Product: prod, Plan: plan}
		h.render(w, http.StatusBadRequest, "pay", pg)
		return
	}

	method := model.PayMethod(form.PayMethod)
	intent, err := h.service.CreateOrder(r.Context(), *s.Account(), plan, method, clientHeaders(r, h.clientVersion))
	if err != nil {
		h.upstreamFailure(w, r, "create_order", err)
		return
	}

	if method == model.PayMethodAlipay {
		http.Redirect(w, r, intent.PaymentURL, http.StatusFound)
		return
	}

	pg := h.page(r, "微信支付")
	pg.Data = view.PaymentData{Plan: plan, Intent: *intent}
	h.render(w, http.StatusOK, "pay_wechat", pg)
}
