package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 表示
	Presenter *Presenter

	// ミドルウェア依存
	Logger      *slog.Logger
	Sessions    middleware.SessionStore
	CSRF        middleware.CSRFConfig
	RateLimiter *middleware.RateLimiter
	// TrustProxy がtrueの場合、X-Forwarded-For等からクライアントIPを復元する。
	TrustProxy bool

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Collector      metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface
	Handshaker  Handshaker
	AuthConfig  AuthHandlerConfig

	// アカウント
	AccountService AccountServiceInterface
	LinkService    LinkServiceInterface

	// 購読
	Paywall        PaywallSource
	PaymentService PaymentServiceInterface

	// サードパーティ認可
	OAuthService OAuthServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP(任意) → Logging → SecurityHeaders → RateLimit(General)
//	  → Session → CSRF → [RequireLogin]
//
// /health と /metrics はセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	p := deps.Presenter
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(p.WriteError))
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(deps.RateLimiter.GeneralMiddleware())

	r.NotFound(p.NotFound)

	authHandler := NewAuthHandler(p, deps.AuthService, deps.Handshaker, deps.Collector, deps.AuthConfig)
	accountHandler := NewAccountHandler(p, deps.AccountService)
	linkHandler := NewLinkHandler(p, deps.LinkService, deps.Collector, deps.AuthConfig.ClientVersion)
	subHandler := NewSubscriptionHandler(p, deps.Paywall, deps.PaymentService, deps.AuthConfig.ClientVersion)
	oauthHandler := NewOAuthHandler(p, deps.OAuthService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- セッション不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	csrfCfg := deps.CSRF
	csrfCfg.ErrorWriter = p.WriteError

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions, p.WriteError))
		r.Use(middleware.NewCSRFMiddleware(csrfCfg))

		authLimit := deps.RateLimiter.AuthMiddleware()

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, profilePath, http.StatusFound)
		})

		// --- ログイン不要のルート ---
		r.Get("/login", authHandler.LoginForm)
		r.With(authLimit).Post("/login", authHandler.Login)
		r.Get("/signup", authHandler.SignupForm)
		r.With(authLimit).Post("/signup", authHandler.Signup)
		r.Get("/logout", authHandler.Logout)

		r.Get("/login/wechat", authHandler.WechatLogin)
		r.Get("/login/wechat/callback", authHandler.WechatCallback)

		r.Route("/password-reset", func(r chi.Router) {
			r.Get("/", authHandler.PasswordResetForm)
			r.With(authLimit).Post("/", authHandler.RequestPasswordReset)
			r.Get("/{token}", authHandler.ResetPasswordForm)
			r.With(authLimit).Post("/{token}", authHandler.ResetPassword)
		})
		r.Get("/verify/email/{token}", authHandler.VerifyEmail)

		r.Get("/subscription", subHandler.Paywall)
		r.Get(authorizePath, oauthHandler.Authorize)

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireLoginMiddleware(loginPath))

			r.Route("/account", func(r chi.Router) {
				r.Get("/", accountHandler.Show)
				r.Post("/email", accountHandler.UpdateEmail)
				r.With(authLimit).Post("/password", accountHandler.UpdatePassword)
				r.Post("/request-verification", accountHandler.RequestVerification)

				r.Get("/unbind", linkHandler.UnlinkForm)
				r.Post("/unbind", linkHandler.Unlink)

				r.Route("/bind", func(r chi.Router) {
					r.Get("/merge", linkHandler.MergeConfirm)
					r.Post("/merge", linkHandler.Merge)
					r.Get("/email", linkHandler.BindEmailForm)
					r.Post("/email", linkHandler.BindEmail)
					r.Get("/login", linkHandler.BindLoginForm)
					r.With(authLimit).Post("/login", linkHandler.BindLogin)
					r.Get("/signup", linkHandler.BindSignupForm)
					r.With(authLimit).Post("/signup", linkHandler.BindSignup)
				})
			})

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", accountHandler.Profile)
				r.Post("/name", accountHandler.UpdateUserName)
				r.Get("/address", accountHandler.AddressForm)
				r.Post("/address", accountHandler.UpdateAddress)
			})

			r.Get("/membership", accountHandler.Membership)

			r.Get("/subscription/pay/{tier}/{cycle}", subHandler.PayForm)
			r.Post("/subscription/pay/{tier}/{cycle}", subHandler.Pay)
		})
	})

	return r
}
