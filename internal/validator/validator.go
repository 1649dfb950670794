// Package validator は永続化前のスキーマ検証を提供する。
package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/lootsy/internal/security"
)

// PlaceholderLink はリンク先が無いディールに設定されるプレースホルダ。
const PlaceholderLink = "#"

// Validator はgo-playground/validatorのラッパー。
// ディール用のカスタムタグ httpurl と safelink を登録済み。
type Validator struct {
	validate *validator.Validate
}

// New はカスタムタグを登録したValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 登録はタグ名が固定のため失敗しない
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return security.IsAbsoluteHTTPURL(fl.Field().String())
	})
	_ = v.RegisterValidation("safelink", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == PlaceholderLink || security.IsAbsoluteHTTPURL(s)
	})
	return &Validator{validate: v}
}

// ValidateStruct はstructタグに基づいて検証する。
func (v *Validator) ValidateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
