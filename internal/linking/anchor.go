package linking

import (
	"errors"
	"fmt"

	"github.com/hitoshi/myftc/internal/model"
)

var (
	// ErrAnchorRequired は会員権があるのにアンカーが指定されていない場合に返される。
	ErrAnchorRequired = errors.New("unlink anchor required")
	// ErrAnchorInvalid はftc/wechat以外の値が指定された場合に返される。
	ErrAnchorInvalid = errors.New("unlink anchor invalid")
)

// AnchorError は会員権の購入チャネルによりアンカーが固定されているのに、
// 別の値が送信された場合のエラー。黙って上書きせず入力エラーとして扱う。
type AnchorError struct {
	Submitted string
	Forced    model.UnlinkAnchor
}

// Error はerrorインターフェースを実装する。
func (e *AnchorError) Error() string {
	return fmt.Sprintf("unlink anchor must be %q, got %q", e.Forced, e.Submitted)
}

// SelectUnlinkAnchor は連携解除時に会員権を保持する側を決める。
//   - 会員権なし: 入力を問わず受け付ける（有効な値ならそれを、そうでなければAnchorNoneを返す）
//   - メール側チャネル（Stripe、Apple等）: ftc以外はAnchorError
//   - それ以外: ftcまたはwechatの指定が必須
func SelectUnlinkAnchor(m model.Membership, submitted string) (model.UnlinkAnchor, error) {
	anchor := model.UnlinkAnchor(submitted)
	known := anchor == model.AnchorFtc || anchor == model.AnchorWechat

	if !m.Exists() {
		if known {
			return anchor, nil
		}
		return model.AnchorNone, nil
	}

	if m.IsFtcChannel() {
		if anchor != model.AnchorFtc {
			return model.AnchorNone, &AnchorError{Submitted: submitted, Forced: model.AnchorFtc}
		}
		return model.AnchorFtc, nil
	}

	if anchor == model.AnchorNone {
		return model.AnchorNone, ErrAnchorRequired
	}
	if !known {
		return model.AnchorNone, ErrAnchorInvalid
	}
	return anchor, nil
}
