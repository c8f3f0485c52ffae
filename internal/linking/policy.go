// Package linking はメールアカウントとWechatアカウントの連携可否を判定する。
// すべての関数は副作用を持たない。
package linking

import (
	"github.com/hitoshi/myftc/internal/model"
)

// DenyReason は連携を拒否した理由。
type DenyReason string

const (
	ReasonAlreadyLinked     DenyReason = "already_linked"
	ReasonFtcLinkedOther    DenyReason = "ftc_linked_other"
	ReasonWechatLinkedOther DenyReason = "wechat_linked_other"
	ReasonBothActive        DenyReason = "both_active"
)

// Decision は連携判定の結果。Allowedがfalseの場合のみReasonが設定される。
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow は許可の判定を返す。
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny は拒否の判定を返す。
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Evaluate はftc（メール側）とwx（Wechat側）のアカウントを連携できるかを判定する。
// 規則は以下の順に評価し、最初に該当したもので確定する。
//  1. 同一アカウント
//  2. メール側が別のWechatと連携済み
//  3. Wechat側が別のメールと連携済み
//  4. 両方に有効な会員権がある
func Evaluate(ftc, wx model.Account, today model.Date) Decision {
	switch {
	case ftc.IsEqual(wx):
		return Deny(ReasonAlreadyLinked)
	case ftc.IsLinked():
		return Deny(ReasonFtcLinkedOther)
	case wx.IsLinked():
		return Deny(ReasonWechatLinkedOther)
	case ftc.Membership.IsActive(today) && wx.Membership.IsActive(today):
		return Deny(ReasonBothActive)
	}
	return Allow()
}
