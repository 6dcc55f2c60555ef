// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は顧客情報やサービスオーダーのメモなど、スタッフが入力する
// 自由記述テキストからHTMLを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズを行う。
// bluemondayのポリシーは生成後に変更しない限りスレッドセーフ。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はすべてのタグを除去したプレーンテキストを返す。
// bluemondayがエスケープした文字（&amp; など）は元に戻す。
// script, styleの中身はタグごと除去される。前後の空白は取り除く。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
