package linking

import (
	"errors"
	"testing"

	"github.com/hitoshi/myftc/internal/model"
)

func membershipWith(pm model.PayMethod) model.Membership {
	return model.Membership{
		Tier:       model.TierPremium,
		Cycle:      model.CycleYear,
		ExpireDate: model.NewDate(2030, 1, 1),
		PayMethod:  pm,
	}
}

func TestSelectUnlinkAnchor_NoMembership_AcceptsAnyInput(t *testing.T) {
	tests := []struct {
		submitted string
		want      model.UnlinkAnchor
	}{
		{"", model.AnchorNone},
		{"ftc", model.AnchorFtc},
		{"wechat", model.AnchorWechat},
		{"bogus", model.AnchorNone},
	}
	for _, tt := range tests {
		got, err := SelectUnlinkAnchor(model.Membership{}, tt.submitted)
		if err != nil {
			t.Errorf("submitted %q: unexpected error %v", tt.submitted, err)
		}
		if got != tt.want {
			t.Errorf("submitted %q: anchor = %q, want %q", tt.submitted, got, tt.want)
		}
	}
}

func TestSelectUnlinkAnchor_FtcChannel_ForcesFtc(t *testing.T) {
	for _, pm := range []model.PayMethod{model.PayMethodStripe, model.PayMethodApple, model.PayMethodB2B} {
		for _, submitted := range []string{"wechat", "", "other"} {
			_, err := SelectUnlinkAnchor(membershipWith(pm), submitted)

			var anchorErr *AnchorError
			if !errors.As(err, &anchorErr) {
				t.Fatalf("%s/%q: error = %v, want *AnchorError", pm, submitted, err)
			}
			if anchorErr.Forced != model.AnchorFtc {
				t.Errorf("%s/%q: Forced = %q, want ftc", pm, submitted, anchorErr.Forced)
			}
		}

		got, err := SelectUnlinkAnchor(membershipWith(pm), "ftc")
		if err != nil || got != model.AnchorFtc {
			t.Errorf("%s/ftc: got (%q, %v), want (ftc, nil)", pm, got, err)
		}
	}
}

func TestSelectUnlinkAnchor_AppleMembershipRejectsWechat(t *testing.T) {
	m := model.Membership{
		Tier:       model.TierStandard,
		Cycle:      model.CycleYear,
		ExpireDate: model.NewDate(2030, 1, 1),
		PayMethod:  model.PayMethodApple,
	}

	_, err := SelectUnlinkAnchor(m, "wechat")

	var anchorErr *AnchorError
	if !errors.As(err, &anchorErr) {
		t.Fatalf("error = %v, want *AnchorError", err)
	}
	if anchorErr.Forced != "ftc" || anchorErr.Submitted != "wechat" {
		t.Errorf("AnchorError = %+v", anchorErr)
	}
}

func TestSelectUnlinkAnchor_WalletChannel_RequiresChoice(t *testing.T) {
	m := membershipWith(model.PayMethodWechat)

	if _, err := SelectUnlinkAnchor(m, ""); !errors.Is(err, ErrAnchorRequired) {
		t.Errorf("empty anchor: error = %v, want ErrAnchorRequired", err)
	}
	if _, err := SelectUnlinkAnchor(m, "both"); !errors.Is(err, ErrAnchorInvalid) {
		t.Errorf("invalid anchor: error = %v, want ErrAnchorInvalid", err)
	}
	for _, want := range []model.UnlinkAnchor{model.AnchorFtc, model.AnchorWechat} {
		got, err := SelectUnlinkAnchor(m, string(want))
		if err != nil || got != want {
			t.Errorf("anchor %q: got (%q, %v)", want, got, err)
		}
	}
}
