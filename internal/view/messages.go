package view

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/myftc/internal/auth"
	"github.com/hitoshi/myftc/internal/linking"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/validation"
)

//go:embed messages.yaml
var messagesYAML []byte

// general セクションのキー
const (
	MsgUnknown            = "unknown"
	MsgCredentialsInvalid = "credentials_invalid"
	MsgEmailNotFound      = "email_not_found"
	MsgAccountNotFound    = "account_not_found"
	MsgTokenInvalid       = "token_invalid"
	MsgPasswordMismatched = "password_mismatched"
)

// messageTable はmessages.yamlの構造。
type messageTable struct {
	Validation map[string]string `yaml:"validation"`
	Fields     map[string]string `yaml:"fields"`
	Upstream   map[string]string `yaml:"upstream"`
	Link       map[string]string `yaml:"link"`
	Handshake  map[string]string `yaml:"handshake"`
	Anchor     map[string]string `yaml:"anchor"`
	Flash      map[string]string `yaml:"flash"`
	General    map[string]string `yaml:"general"`
}

// Messages はエラーコードや判定結果を画面表示用の文言に変換する。
type Messages struct {
	t messageTable
}

// LoadMessages は埋め込みのメッセージテーブルを読み込む。
func LoadMessages() (*Messages, error) {
	return ParseMessages(messagesYAML)
}

// ParseMessages はYAMLからメッセージテーブルを生成する。
func ParseMessages(b []byte) (*Messages, error) {
	var t messageTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	if t.General[MsgUnknown] == "" {
		return nil, fmt.Errorf("messages: general.%s is required", MsgUnknown)
	}
	return &Messages{t: t}, nil
}

// Text はgeneralセクションの文言を返す。
func (m *Messages) Text(key string) string {
	if s, ok := m.t.General[key]; ok {
		return s
	}
	return m.t.General[MsgUnknown]
}

// FieldErrors はフォーム検証エラーをフィールドごとの文言に変換する。
// "field.tag" の個別文言、タグ共通の文言の順に探す。
func (m *Messages) FieldErrors(fe validation.FieldErrors) map[string]string {
	if len(fe) == 0 {
		return nil
	}
	out := make(map[string]string, len(fe))
	for field, tag := range fe {
		if s, ok := m.t.Fields[field+"."+tag]; ok {
			out[field] = s
			continue
		}
		if s, ok := m.t.Validation[tag]; ok {
			out[field] = s
			continue
		}
		out[field] = m.t.General[MsgUnknown]
	}
	return out
}

// Upstream は上流APIのエラーを文言に変換する。
// 422はテーブルを引き、見つからなければ上流のメッセージをそのまま使う。
func (m *Messages) Upstream(err error) string {
	e, ok := reader.As(err)
	if !ok {
		return m.t.General[MsgUnknown]
	}
	if e.Kind == reader.KindUnprocessable {
		if s, ok := m.t.Upstream[e.Key()]; ok {
			return s
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return m.t.General[MsgUnknown]
}

// LinkDenied は連携拒否の理由を文言に変換する。
func (m *Messages) LinkDenied(reason linking.DenyReason) string {
	if s, ok := m.t.Link[string(reason)]; ok {
		return s
	}
	return m.t.General[MsgUnknown]
}

// Handshake はWechat認可の検証エラーを文言に変換する。
func (m *Messages) Handshake(err error) string {
	var pmErr *auth.ParamMissingError
	key := ""
	switch {
	case errors.Is(err, auth.ErrSessionMissing):
		key = "session_missing"
	case errors.As(err, &pmErr):
		key = "param_missing"
	case errors.Is(err, auth.ErrStateMismatch):
		key = "state_mismatch"
	case errors.Is(err, auth.ErrHandshakeExpired):
		key = "expired"
	}
	if s, ok := m.t.Handshake[key]; ok {
		return s
	}
	return m.t.General[MsgUnknown]
}

// Anchor は連携解除アンカーの選択エラーを文言に変換する。
func (m *Messages) Anchor(err error) string {
	var aErr *linking.AnchorError
	key := ""
	switch {
	case errors.As(err, &aErr):
		key = "forced"
	case errors.Is(err, linking.ErrAnchorRequired):
		key = "required"
	case errors.Is(err, linking.ErrAnchorInvalid):
		key = "invalid"
	}
	if s, ok := m.t.Anchor[key]; ok {
		return s
	}
	return m.t.General[MsgUnknown]
}

// Flash は一度だけ表示するフラグの文言を返す。
func (m *Messages) Flash(f session.Flag) string {
	return m.t.Flash[string(f)]
}
