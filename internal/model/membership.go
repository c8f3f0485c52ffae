package model

// Tier は会員のグレードを表す。
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Cycle は課金周期を表す。
type Cycle string

const (
	CycleMonth Cycle = "month"
	CycleYear  Cycle = "year"
)

// PayMethod は会員権を購入した決済チャネルを表す。
type PayMethod string

const (
	PayMethodAlipay PayMethod = "alipay"
	PayMethodWechat PayMethod = "wechat"
	PayMethodStripe PayMethod = "stripe"
	PayMethodApple  PayMethod = "apple"
	PayMethodB2B    PayMethod = "b2b"
)

// IsValid はパラメータとして受け付ける既知のTierかどうかを返す。
func (t Tier) IsValid() bool {
	return t == TierStandard || t == TierPremium
}

// IsValid はパラメータとして受け付ける既知のCycleかどうかを返す。
func (c Cycle) IsValid() bool {
	return c == CycleMonth || c == CycleYear
}

// Membership はアカウントに紐づく会員権を表す。
// Tier、Cycle、ExpireDateは揃って存在するか、揃って欠けるかのどちらか。
type Membership struct {
	Tier       Tier      `json:"tier,omitempty"`
	Cycle      Cycle     `json:"cycle,omitempty"`
	ExpireDate Date      `json:"expireDate"`
	PayMethod  PayMethod `json:"payMethod,omitempty"`
	AutoRenew  bool      `json:"autoRenew"`
	VIP        bool      `json:"vip"`
}

// Exists は会員権が存在するかどうかを返す。
func (m Membership) Exists() bool {
	return m.Tier != "" && m.Cycle != "" && !m.ExpireDate.IsZero()
}

// IsActive はtoday時点で会員権が有効かどうかを返す。期限日当日は有効とする。
func (m Membership) IsActive(today Date) bool {
	return m.Exists() && !m.ExpireDate.Before(today)
}

// RemainingDays はtodayから期限日までの残り日数を返す。
// 会員権が存在しない場合は0。
func (m Membership) RemainingDays(today Date) int {
	if !m.Exists() {
		return 0
	}
	return today.DaysUntil(m.ExpireDate)
}

// IsFtcChannel は会員権がメールアカウント側のチャネル（Stripe、Apple IAP、B2B等）
// で購入されたかどうかを返す。alipayとwechat以外はすべて該当する。
func (m Membership) IsFtcChannel() bool {
	return m.PayMethod != PayMethodAlipay && m.PayMethod != PayMethodWechat
}
