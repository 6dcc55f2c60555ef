// Package customer は顧客一覧の派生ビュー計算と顧客管理のドメインロジックを提供する。
package customer

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/servicedesk/internal/model"
)

const (
	// PageSize は一覧の1ページあたりの件数。
	PageSize = 10
	// ChartMonths はチャート系列の月数（当月を含む）。
	ChartMonths = 6
	// RecentLimit は最近登録された顧客の表示件数。
	RecentLimit = 5
)

// DateFilter は登録日による絞り込みの種別。
type DateFilter string

const (
	DateFilterAll       DateFilter = "all"
	DateFilterThisMonth DateFilter = "this-month"
	DateFilterLastMonth DateFilter = "last-month"
	DateFilterThisYear  DateFilter = "this-year"
)

// Valid は定義済みの絞り込み種別かを返す。
func (f DateFilter) Valid() bool {
	switch f {
	case DateFilterAll, DateFilterThisMonth, DateFilterLastMonth, DateFilterThisYear:
		return true
	default:
		return false
	}
}

// SortKey は並び替えのキー。
type SortKey string

const (
	SortByFullName     SortKey = "full_name"
	SortByPhoneNumber  SortKey = "phone_number"
	SortByEmail        SortKey = "email"
	SortByCreatedAt    SortKey = "created_at"
	SortByServiceCount SortKey = "service_count"
)

// Valid は定義済みのキーかを返す。
func (k SortKey) Valid() bool {
	switch k {
	case SortByFullName, SortByPhoneNumber, SortByEmail, SortByCreatedAt, SortByServiceCount:
		return true
	default:
		return false
	}
}

// Direction は並び順。
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Sort は並び替えの設定。
type Sort struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// Query は派生ビューの入力。Nowを入力として受け取るため、同じ入力からは常に同じ結果になる。
type Query struct {
	Search     string
	DateFilter DateFilter
	Sort       Sort
	Page       int
	PageSize   int
	Now        time.Time
}

// Summary は絞り込み前の全顧客に対する集計値。
type Summary struct {
	Total           int     `json:"total"`
	ThisMonth       int     `json:"this_month"`
	AverageServices float64 `json:"average_services"`
}

// ChartPoint は月別の新規顧客数。
type ChartPoint struct {
	Month string `json:"month"` // "2006-01"
	Count int    `json:"count"`
}

// View は顧客一覧画面に表示する派生データ。
type View struct {
	Items      []model.Customer
	TotalPages int
	// Matched は絞り込み後の件数。
	Matched int
	Summary Summary
	Chart   []ChartPoint
	Recent  []model.Customer
}

// DeriveView は顧客一覧から表示用の派生データを計算する。
// 検索、日付範囲で絞り込んだ後に並び替え、ページ単位に切り出す。
// 集計値・チャート・最近の顧客は絞り込み前の全件から計算する。
// 範囲外のページは空のItemsを返す。ページ番号の補正は呼び出し側で行う。
func DeriveView(customers []model.Customer, q Query) View {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = PageSize
	}

	filtered := FilterBySearch(customers, q.Search)
	filtered = FilterByDate(filtered, q.DateFilter, q.Now)
	SortCustomers(filtered, q.Sort)

	return View{
		Items:      Paginate(filtered, q.Page, pageSize),
		TotalPages: TotalPages(len(filtered), pageSize),
		Matched:    len(filtered),
		Summary:    Summarize(customers, q.Now),
		Chart:      MonthlySeries(customers, q.Now),
		Recent:     Recent(customers, RecentLimit),
	}
}

// FilterBySearch は氏名・電話番号・メールアドレスのいずれかに検索語を含む顧客を返す。
// 大文字小文字は区別しない。空の検索語は全件に一致する。入力は変更しない。
func FilterBySearch(customers []model.Customer, term string) []model.Customer {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if term == "" ||
			strings.Contains(strings.ToLower(c.FullName), term) ||
			strings.Contains(strings.ToLower(c.PhoneNumber), term) ||
			strings.Contains(strings.ToLower(c.Email), term) {
			out = append(out, c)
		}
	}
	return out
}

// DateRange は絞り込み種別をnowのロケーションにおける具体的な期間に変換する。
// endは期間最終日の23:59:59.999で、両端を含む。DateFilterAllおよび未定義の種別はok=false。
func DateRange(filter DateFilter, now time.Time) (start, end time.Time, ok bool) {
	loc := now.Location()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	switch filter {
	case DateFilterThisMonth:
		start = monthStart
		end = monthStart.AddDate(0, 1, 0)
	case DateFilterLastMonth:
		start = monthStart.AddDate(0, -1, 0)
		end = monthStart
	case DateFilterThisYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		return time.Time{}, time.Time{}, false
	}
	return start, end.Add(-time.Millisecond), true
}

// FilterByDate は登録日時が期間内の顧客を返す。入力は変更しない。
func FilterByDate(customers []model.Customer, filter DateFilter, now time.Time) []model.Customer {
	start, end, ok := DateRange(filter, now)
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if !ok || within(c.CreatedAt, start, end) {
			out = append(out, c)
		}
	}
	return out
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// SortCustomers は顧客をその場で安定ソートする。
// 文字列キーは大文字小文字を区別せず、未設定は空文字列として比較する。
// キーが等しい場合は並び順の向きに関わらずID昇順とする。
func SortCustomers(customers []model.Customer, s Sort) {
	key := s.Key
	if !key.Valid() {
		key = SortByCreatedAt
	}
	sign := 1
	if s.Direction == Descending {
		sign = -1
	}

	slices.SortStableFunc(customers, func(a, b model.Customer) int {
		if c := compareByKey(a, b, key); c != 0 {
			return sign * c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func compareByKey(a, b model.Customer, key SortKey) int {
	switch key {
	case SortByFullName:
		return compareFold(a.FullName, b.FullName)
	case SortByPhoneNumber:
		return compareFold(a.PhoneNumber, b.PhoneNumber)
	case SortByEmail:
		return compareFold(a.Email, b.Email)
	case SortByServiceCount:
		return cmp.Compare(a.ServiceCount, b.ServiceCount)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// TotalPages は件数とページサイズから総ページ数を返す。0件の場合は0。
func TotalPages(n, pageSize int) int {
	if n == 0 || pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// Paginate は1始まりのページ番号でスライスを切り出す。範囲外は空スライス。
func Paginate(customers []model.Customer, page, pageSize int) []model.Customer {
	offset := (page - 1) * pageSize
	if page < 1 || offset >= len(customers) {
		return []model.Customer{}
	}
	end := min(offset+pageSize, len(customers))
	return slices.Clone(customers[offset:end])
}

// Summarize は全顧客の件数、当月登録数、平均サービス件数（小数第1位で丸め）を返す。
func Summarize(customers []model.Customer, now time.Time) Summary {
	s := Summary{Total: len(customers)}
	if len(customers) == 0 {
		return s
	}

	start, end, _ := DateRange(DateFilterThisMonth, now)
	total := 0
	for _, c := range customers {
		if within(c.CreatedAt, start, end) {
			s.ThisMonth++
		}
		total += c.ServiceCount
	}
	s.AverageServices = math.Round(float64(total)/float64(len(customers))*10) / 10
	return s
}

// MonthlySeries は当月までの6か月分の月別登録数を古い順に返す。
func MonthlySeries(customers []model.Customer, now time.Time) []ChartPoint {
	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	points := make([]ChartPoint, ChartMonths)
	index := make(map[string]int, ChartMonths)
	for i := 0; i < ChartMonths; i++ {
		m := current.AddDate(0, i-(ChartMonths-1), 0)
		label := m.Format("2006-01")
		points[i] = ChartPoint{Month: label}
		index[label] = i
	}

	for _, c := range customers {
		if i, ok := index[c.CreatedAt.In(loc).Format("2006-01")]; ok {
			points[i].Count++
		}
	}
	return points
}

// Recent は登録日時の新しい順に最大limit件を返す。入力は変更しない。
func Recent(customers []model.Customer, limit int) []model.Customer {
	sorted := slices.Clone(customers)
	SortCustomers(sorted, Sort{Key: SortByCreatedAt, Direction: Descending})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if sorted == nil {
		return []model.Customer{}
	}
	return sorted
}
