package model

import (
	"bytes"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date は時刻を持たない暦日を表す。
// 会員期限など、上流APIが "YYYY-MM-DD" 形式で返す値に使用する。
// ゼロ値は「未設定」を意味する。
type Date struct {
	t time.Time
}

// NewDate は年月日からDateを生成する。
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf は時刻の暦日部分を取り出す。タイムゾーンはtのものを使う。
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate は "YYYY-MM-DD" 形式の文字列をパースする。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// IsZero は日付が未設定かどうかを返す。
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Before はdがotherより前の日付かどうかを返す。
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// DaysUntil はdからotherまでの日数を返す。otherが過去の場合は負になる。
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// String は "YYYY-MM-DD" 形式の文字列を返す。未設定の場合は空文字列。
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalJSON は未設定の場合nullを出力する。
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON はnull、空文字列、"YYYY-MM-DD" を受け付ける。
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("date must be a JSON string: %s", string(b))
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
