// Package validation はフォーム入力のデコードと検証を提供する。
// go-playground/validatorのインスタンスはstruct情報をキャッシュするため、シングルトンで共有する。
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/zitadel/schema"

	"github.com/hitoshi/myftc/internal/security"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	decoder     *schema.Decoder
	decoderOnce sync.Once

	sanitizer     *security.TextSanitizer
	sanitizerOnce sync.Once
)

// GetValidator はシングルトンのvalidatorを返す。
// エラーのフィールド名にはformタグの名前を使う。
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
	return validate
}

func getDecoder() *schema.Decoder {
	decoderOnce.Do(func() {
		decoder = schema.NewDecoder()
		decoder.SetAliasTag("form")
		decoder.IgnoreUnknownKeys(true)
	})
	return decoder
}

func getSanitizer() *security.TextSanitizer {
	sanitizerOnce.Do(func() {
		sanitizer = security.NewTextSanitizer()
	})
	return sanitizer
}

// FieldErrors はフィールド名から失敗した検証タグへの対応。
// 表示用のメッセージへの変換はview.Messagesで行う。
type FieldErrors map[string]string

// Add はフィールドのエラーを追加する。既にある場合は上書きしない。
func (fe FieldErrors) Add(field, tag string) {
	if _, ok := fe[field]; !ok {
		fe[field] = tag
	}
}

// Has はフィールドにエラーがあるかどうかを返す。
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Validate はstructを検証する。問題がなければnilを返す。
// struct以外を渡した場合はプログラムの誤りなのでpanicする。
func Validate(v any) FieldErrors {
	err := GetValidator().Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		panic(fmt.Sprintf("validation: %v", err))
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		panic(fmt.Sprintf("validation: unexpected error type %T", err))
	}

	fe := make(FieldErrors, len(verrs))
	for _, fieldErr := range verrs {
		fe.Add(fieldErr.Field(), fieldErr.Tag())
	}
	return fe
}

// cleaner はデコード後に入力値を正規化するフォーム。
type cleaner interface {
	clean(s *security.TextSanitizer)
}

// DecodeForm はリクエストのフォーム値をdstにデコードし、入力値を正規化する。
// 検証は行わない。
func DecodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("failed to parse form: %w", err)
	}
	if err := getDecoder().Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("failed to decode form: %w", err)
	}
	if c, ok := dst.(cleaner); ok {
		c.clean(getSanitizer())
	}
	return nil
}

// DecodeQuery はクエリ文字列をdstにデコードする。
func DecodeQuery(r *http.Request, dst any) error {
	if err := getDecoder().Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query: %w", err)
	}
	if c, ok := dst.(cleaner); ok {
		c.clean(getSanitizer())
	}
	return nil
}
