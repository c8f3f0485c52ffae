// Package auth はWechat OAuthハンドシェイクの開始と検証を提供する。
//
// ハンドシェイクは2状態で管理される。PENDINGはセッションがOAuthSessionを保持し
// コールバックを待っている状態、CONSUMEDはセッションから削除された終端状態。
// 状態遷移（セッションからの削除）は呼び出し側の責務とする。
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/hitoshi/myftc/internal/model"
)

const (
	// StateLength はstateトークンの文字数。
	StateLength = 12
	// HandshakeTTL はハンドシェイク開始からコールバックまでの有効期間。
	HandshakeTTL = 300 * time.Second

	statePool = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ハンドシェイク検証エラー。検証順に定義する。
var (
	// ErrSessionMissing はセッションにOAuthSessionが存在しない場合に返される。
	ErrSessionMissing = errors.New("oauth session missing")
	// ErrStateMismatch はコールバックのstateがセッションのものと一致しない場合に返される。
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrHandshakeExpired はハンドシェイク開始から有効期間を過ぎた場合に返される。
	ErrHandshakeExpired = errors.New("oauth handshake expired")
)

// ParamMissingError はコールバックのクエリパラメータが欠けている場合のエラー。
// codeとstateの両方が欠けている場合は両方を報告する。
type ParamMissingError struct {
	Fields []string
}

// Error はerrorインターフェースを実装する。
func (e *ParamMissingError) Error() string {
	return fmt.Sprintf("oauth callback missing params: %s", strings.Join(e.Fields, ", "))
}

// CallbackParams はWechatコールバックのクエリパラメータ。
type CallbackParams struct {
	Code  string
	State string
}

// Tracker はWechat OAuthハンドシェイクを生成・検証する。
type Tracker struct {
	config WechatConfig

	// テスト用に差し替え可能
	Now  func() time.Time
	Rand io.Reader
}

// NewTracker はTrackerを生成する。
func NewTracker(config WechatConfig) *Tracker {
	return &Tracker{
		config: config,
		Now:    time.Now,
		Rand:   rand.Reader,
	}
}

// CreateHandshake は新しいstateを生成し、保存すべきOAuthSessionと
// ブラウザのリダイレクト先URLを返す。
func (t *Tracker) CreateHandshake(usage model.OAuthUsage) (*model.OAuthSession, string, error) {
	state, err := t.generateState()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	sess := &model.OAuthSession{
		State:   state,
		Created: t.Now().Unix(),
		Usage:   usage,
	}

	return sess, t.config.authorizeURL(state), nil
}

// ValidateCallback はコールバックのパラメータを検証し、認可コードを返す。
// 検証順序: セッションの有無 → パラメータの有無 → stateの一致 → 有効期限。
// いずれかで失敗した時点で以降の検証は行わない。
func (t *Tracker) ValidateCallback(params CallbackParams, sess *model.OAuthSession) (string, error) {
	if sess == nil {
		return "", ErrSessionMissing
	}

	var missing []string
	if params.Code == "" {
		missing = append(missing, "code")
	}
	if params.State == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return "", &ParamMissingError{Fields: missing}
	}

	if strings.TrimSpace(params.State) != sess.State {
		return "", ErrStateMismatch
	}

	if t.Now().Unix()-sess.Created > int64(HandshakeTTL/time.Second) {
		return "", ErrHandshakeExpired
	}

	return params.Code, nil
}

// generateState は英数字プールから暗号的に安全なランダム文字列を生成する。
func (t *Tracker) generateState() (string, error) {
	max := big.NewInt(int64(len(statePool)))
	b := make([]byte, StateLength)
	for i := range b {
		n, err := rand.Int(t.Rand, max)
		if err != nil {
			return "", err
		}
		b[i] = statePool[n.Int64()]
	}
	return string(b), nil
}
