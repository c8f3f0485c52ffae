package linking

import (
	"testing"
	"time"

	"github.com/hitoshi/myftc/internal/model"
)

var today = model.NewDate(2024, 1, 1)

func activeMembership(y int, m time.Month, d int) model.Membership {
	return model.Membership{
		Tier:       model.TierStandard,
		Cycle:      model.CycleYear,
		ExpireDate: model.NewDate(y, m, d),
		PayMethod:  model.PayMethodAlipay,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		ftc  model.Account
		wx   model.Account
		want Decision
	}{
		{
			name: "同一アカウントは連携済み",
			ftc:  model.Account{FtcID: "u1", UnionID: "w1"},
			wx:   model.Account{FtcID: "u1", UnionID: "w1"},
			want: Deny(ReasonAlreadyLinked),
		},
		{
			name: "会員権なし同士は連携可能",
			ftc:  model.Account{FtcID: "u1"},
			wx:   model.Account{UnionID: "w1"},
			want: Allow(),
		},
		{
			name: "両方有効な会員権は拒否",
			ftc:  model.Account{FtcID: "u1", Membership: activeMembership(2030, 1, 1)},
			wx:   model.Account{UnionID: "w1", Membership: activeMembership(2030, 6, 1)},
			want: Deny(ReasonBothActive),
		},
		{
			name: "メール側が別のWechatと連携済み",
			ftc:  model.Account{FtcID: "u1", UnionID: "w2"},
			wx:   model.Account{UnionID: "w1"},
			want: Deny(ReasonFtcLinkedOther),
		},
		{
			name: "Wechat側が別のメールと連携済み",
			ftc:  model.Account{FtcID: "u1"},
			wx:   model.Account{FtcID: "u2", UnionID: "w1"},
			want: Deny(ReasonWechatLinkedOther),
		},
		{
			name: "構造チェックが会員権チェックより優先される",
			ftc:  model.Account{FtcID: "u1", UnionID: "w2", Membership: activeMembership(2030, 1, 1)},
			wx:   model.Account{UnionID: "w1", Membership: activeMembership(2030, 1, 1)},
			want: Deny(ReasonFtcLinkedOther),
		},
		{
			name: "片方の会員権が期限切れなら連携可能",
			ftc:  model.Account{FtcID: "u1", Membership: activeMembership(2023, 12, 31)},
			wx:   model.Account{UnionID: "w1", Membership: activeMembership(2030, 1, 1)},
			want: Allow(),
		},
		{
			name: "期限日当日の会員権は有効とみなす",
			ftc:  model.Account{FtcID: "u1", Membership: activeMembership(2024, 1, 1)},
			wx:   model.Account{UnionID: "w1", Membership: activeMembership(2024, 1, 1)},
			want: Deny(ReasonBothActive),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.ftc, tt.wx, today)
			if got != tt.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
			}
			// 純粋関数なので再評価しても同じ結果になる
			if again := Evaluate(tt.ftc, tt.wx, today); again != got {
				t.Errorf("second Evaluate() = %+v, want %+v", again, got)
			}
		})
	}
}
