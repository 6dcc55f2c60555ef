package customer

import (
	"net/mail"
	"strings"

	"github.com/hitoshi/servicedesk/internal/model"
)

// Input は顧客の作成・更新リクエストの入力値。
type Input struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Address     string `json:"address"`
}

// Sanitizer は自由記述テキストを無害化する。
type Sanitizer interface {
	SanitizeText(s string) string
}

// Normalize は前後の空白を除去し、自由記述を無害化した入力を返す。
func (in Input) Normalize(s Sanitizer) Input {
	out := Input{
		FullName:    strings.TrimSpace(in.FullName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Email:       strings.TrimSpace(in.Email),
		Address:     strings.TrimSpace(in.Address),
	}
	if s != nil {
		out.FullName = s.SanitizeText(out.FullName)
		out.Address = s.SanitizeText(out.Address)
	}
	return out
}

// Validate は入力値を検証する。DBアクセスの前に呼び出す。
// 氏名は必須、電話番号とメールアドレスのいずれかは必須。
func (in Input) Validate() *model.APIError {
	if in.FullName == "" {
		return model.NewValidationError("full_name", "氏名は必須です")
	}
	if in.PhoneNumber == "" && in.Email == "" {
		return model.NewValidationError("phone_number", "電話番号またはメールアドレスのいずれかを入力してください")
	}
	if in.Email != "" && !ValidEmail(in.Email) {
		return model.NewValidationError("email", "メールアドレスの形式が正しくありません")
	}
	if in.PhoneNumber != "" && !validPhone(in.PhoneNumber) {
		return model.NewValidationError("phone_number", "電話番号の形式が正しくありません")
	}
	return nil
}

// ValidEmail はアドレス部のみから成るメールアドレスかを返す。
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// validPhone は数字、空白、+、-、括弧のみから成り、数字を6桁以上含むかを返す。
func validPhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '+' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 6
}
