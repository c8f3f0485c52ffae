package model

// Plan は購入可能な料金プランを表す。
type Plan struct {
	ID       string  `json:"id"`
	Tier     Tier    `json:"tier"`
	Cycle    Cycle   `json:"cycle"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Product は会員グレードごとの商品説明とプランをまとめる。
type Product struct {
	Tier        Tier     `json:"tier"`
	Heading     string   `json:"heading"`
	Description []string `json:"description"`
	Plans       []Plan   `json:"plans"`
}

// Paywall は購読ページに表示する商品一覧。
type Paywall struct {
	Banner   string    `json:"banner"`
	Products []Product `json:"products"`
}

// FindPlan はtierとcycleに一致するプランを返す。見つからない場合はfalse。
func (p Paywall) FindPlan(tier Tier, cycle Cycle) (Plan, bool) {
	for _, prod := range p.Products {
		for _, plan := range prod.Plans {
			if plan.Tier == tier && plan.Cycle == cycle {
				return plan, true
			}
		}
	}
	return Plan{}, false
}

// PaymentIntent は上流APIが注文作成時に返す決済の開始情報。
// alipayはPaymentURLへリダイレクトし、wechatはQRCodeURLをQRコードとして表示する。
type PaymentIntent struct {
	OrderID    string    `json:"orderId"`
	PayMethod  PayMethod `json:"payMethod"`
	Price      float64   `json:"price"`
	PaymentURL string    `json:"paymentUrl,omitempty"`
	QRCodeURL  string    `json:"qrCodeUrl,omitempty"`
}

// UnlinkAnchor はWechat連携解除時に会員権を保持する側を表す。
type UnlinkAnchor string

const (
	AnchorNone   UnlinkAnchor = ""
	AnchorFtc    UnlinkAnchor = "ftc"
	AnchorWechat UnlinkAnchor = "wechat"
)
