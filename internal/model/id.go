package model

import "github.com/google/uuid"

// ValidID はIDが標準形式（ハイフン区切り36文字）のUUIDであるかを返す。
// DBのUUID列へ渡す前に検証し、形式不正を見つからない扱いや入力エラーにする。
func ValidID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
