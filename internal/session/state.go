// Package session はリクエストをまたいで保持するセッション状態を提供する。
//
// 状態は名前付きのフィールドで持ち、各フィールドは設定・参照・消費（読み出して削除）・
// 削除の操作を明示的に提供する。変更はすべてdirtyとして記録され、
// レスポンス送出前に1回だけ永続化される。
package session

import (
	"github.com/hitoshi/myftc/internal/model"
)

// Flag は一度だけ表示するUIフラグ。
type Flag string

const (
	FlagLinked        Flag = "linked"
	FlagUnlinked      Flag = "unlinked"
	FlagSaved         Flag = "saved"
	FlagLetterSent    Flag = "letter_sent"
	FlagPasswordReset Flag = "password_reset"
	FlagVerified      Flag = "verified"
)

// data は永続化されるセッションの内容。
type data struct {
	Account           *model.Account          `json:"account,omitempty"`
	PendingOAuth      *model.OAuthSession     `json:"pendingOAuth,omitempty"`
	PendingLinkTarget string                  `json:"pendingLinkTarget,omitempty"`
	PendingAuthorize  *model.AuthorizeRequest `json:"pendingAuthorize,omitempty"`
	Flags             map[Flag]bool           `json:"flags,omitempty"`
}

// State は1リクエスト分のセッション状態。
// 並行アクセスは想定しない（1リクエスト1ゴルーチン）。
type State struct {
	id        string
	data      data
	dirty     bool
	renew     bool
	destroyed bool
}

// NewState は空のセッション状態を生成する。
func NewState() *State {
	return &State{}
}

// ID はセッションIDを返す。未保存の場合は空文字列。
func (s *State) ID() string {
	return s.id
}

// Dirty は永続化が必要な変更があるかどうかを返す。
func (s *State) Dirty() bool {
	return s.dirty
}

// --- Account ---

// Account はログイン中のアカウントを返す。未ログインの場合はnil。
// 返り値はコピーであり、変更はSetAccountで反映する必要がある。
func (s *State) Account() *model.Account {
	if s.data.Account == nil {
		return nil
	}
	a := *s.data.Account
	return &a
}

// LoggedIn はログイン中かどうかを返す。
func (s *State) LoggedIn() bool {
	return s.data.Account != nil
}

// SetAccount はログイン中のアカウントを保存する。
// 未ログインからのログインではセッションIDを再発行する。
func (s *State) SetAccount(a model.Account) {
	if s.data.Account == nil {
		s.renew = true
	}
	s.data.Account = &a
	s.dirty = true
}

// ClearAccount はログイン中のアカウントを削除する。
func (s *State) ClearAccount() {
	s.data.Account = nil
	s.dirty = true
}

// --- PendingOAuth ---

// PendingOAuth は進行中のWechat認可を参照する。削除はしない。
func (s *State) PendingOAuth() *model.OAuthSession {
	return s.data.PendingOAuth
}

// SetPendingOAuth は進行中のWechat認可を保存する。既存のものは上書きする。
func (s *State) SetPendingOAuth(o *model.OAuthSession) {
	s.data.PendingOAuth = o
	s.dirty = true
}

// ConsumePendingOAuth は進行中のWechat認可を読み出して削除する。
func (s *State) ConsumePendingOAuth() *model.OAuthSession {
	o := s.data.PendingOAuth
	s.ClearPendingOAuth()
	return o
}

// ClearPendingOAuth は進行中のWechat認可を削除する。
func (s *State) ClearPendingOAuth() {
	if s.data.PendingOAuth == nil {
		return
	}
	s.data.PendingOAuth = nil
	s.dirty = true
}

// --- PendingLinkTarget ---

// PendingLinkTarget は連携確認待ちの相手アカウントIDを参照する。
func (s *State) PendingLinkTarget() string {
	return s.data.PendingLinkTarget
}

// SetPendingLinkTarget は連携確認待ちの相手アカウントIDを保存する。
func (s *State) SetPendingLinkTarget(id string) {
	s.data.PendingLinkTarget = id
	s.dirty = true
}

// ConsumePendingLinkTarget は連携確認待ちの相手アカウントIDを読み出して削除する。
func (s *State) ConsumePendingLinkTarget() string {
	id := s.data.PendingLinkTarget
	s.ClearPendingLinkTarget()
	return id
}

// ClearPendingLinkTarget は連携確認待ちの相手アカウントIDを削除する。
func (s *State) ClearPendingLinkTarget() {
	if s.data.PendingLinkTarget == "" {
		return
	}
	s.data.PendingLinkTarget = ""
	s.dirty = true
}

// --- PendingAuthorize ---

// PendingAuthorize はログイン後に再開するサードパーティ認可リクエストを参照する。
func (s *State) PendingAuthorize() *model.AuthorizeRequest {
	return s.data.PendingAuthorize
}

// SetPendingAuthorize はサードパーティ認可リクエストを保存する。
func (s *State) SetPendingAuthorize(req *model.AuthorizeRequest) {
	s.data.PendingAuthorize = req
	s.dirty = true
}

// ConsumePendingAuthorize はサードパーティ認可リクエストを読み出して削除する。
func (s *State) ConsumePendingAuthorize() *model.AuthorizeRequest {
	req := s.data.PendingAuthorize
	if req != nil {
		s.data.PendingAuthorize = nil
		s.dirty = true
	}
	return req
}

// --- Flags ---

// SetFlag は一度だけ表示するフラグを立てる。
func (s *State) SetFlag(f Flag) {
	if s.data.Flags == nil {
		s.data.Flags = make(map[Flag]bool)
	}
	s.data.Flags[f] = true
	s.dirty = true
}

// ConsumeFlag はフラグが立っているかを返し、立っていれば下ろす。
func (s *State) ConsumeFlag(f Flag) bool {
	if !s.data.Flags[f] {
		return false
	}
	delete(s.data.Flags, f)
	s.dirty = true
	return true
}

// Destroy はセッションを破棄する。コミット時に保存済みエントリとCookieが削除される。
func (s *State) Destroy() {
	s.data = data{}
	s.destroyed = true
	s.dirty = true
}
