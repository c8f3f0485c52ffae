package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/myftc/internal/model"
	"github.com/hitoshi/myftc/internal/repository"
)

// CookieName はセッションIDを保持するCookieの名前。
const CookieName = "myftc_sid"

// Options はセッションCookieの設定。
type Options struct {
	MaxAge       time.Duration
	CookieDomain string
	CookieSecure bool
}

// Manager はCookieに紐づくセッション状態の読み込みと永続化を行う。
type Manager struct {
	repo repository.SessionRepository
	opts Options
	now  func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(repo repository.SessionRepository, opts Options) *Manager {
	return &Manager{repo: repo, opts: opts, now: time.Now}
}

// Load はリクエストのCookieからセッション状態を読み込む。
// Cookieがない場合、保存済みエントリが見つからない場合は空の状態を返す。
func (m *Manager) Load(r *http.Request) (*State, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return NewState(), nil
	}

	rec, err := m.repo.Find(r.Context(), cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if rec == nil {
		return NewState(), nil
	}

	s := &State{id: rec.ID}
	if err := json.Unmarshal(rec.Data, &s.data); err != nil {
		// 壊れたエントリは破棄して新しいセッションとして扱う
		slog.Warn("discarding undecodable session",
			slog.String("session_id_prefix", prefix(rec.ID)),
			slog.String("error", err.Error()),
		)
		return NewState(), nil
	}

	return s, nil
}

// Commit は変更されたセッション状態を保存し、Cookieを設定する。
// 変更がない場合は何もしない。
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *State) error {
	if !s.dirty {
		return nil
	}

	if s.destroyed {
		if s.id != "" {
			if err := m.repo.Delete(ctx, s.id); err != nil {
				return err
			}
		}
		s.id = ""
		m.clearCookie(w)
		s.dirty = false
		return nil
	}

	// ログイン時はセッション固定攻撃を避けるためIDを再発行する
	if s.renew && s.id != "" {
		if err := m.repo.Delete(ctx, s.id); err != nil {
			return err
		}
		s.id = ""
	}

	if s.id == "" {
		id, err := generateSessionID()
		if err != nil {
			return fmt.Errorf("failed to generate session id: %w", err)
		}
		s.id = id
	}

	payload, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	now := m.now()
	rec := &model.SessionRecord{
		ID:        s.id,
		Data:      payload,
		ExpiresAt: now.Add(m.opts.MaxAge),
		CreatedAt: now,
	}
	if err := m.repo.Save(ctx, rec); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.id,
		Path:     "/",
		Domain:   m.opts.CookieDomain,
		MaxAge:   int(m.opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	s.dirty = false
	s.renew = false
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// prefix はログ出力用にIDの先頭のみを返す。
func prefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
