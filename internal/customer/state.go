package customer

// ListState は顧客一覧画面の表示状態（検索語、日付絞り込み、並び替え、ページ）。
// 変更は With 系メソッドを通して行い、絞り込み条件や並び替えキーが変わるとページは1に戻る。
type ListState struct {
	Search     string     `json:"search"`
	DateFilter DateFilter `json:"date_filter"`
	Sort       Sort       `json:"sort"`
	Page       int        `json:"page"`
}

// DefaultListState は初期表示の状態を返す。
func DefaultListState() ListState {
	return ListState{
		DateFilter: DateFilterAll,
		Sort:       Sort{Key: SortByCreatedAt, Direction: Descending},
		Page:       1,
	}
}

// WithSearch は検索語を変更する。
func (s ListState) WithSearch(term string) ListState {
	if term != s.Search {
		s.Search = term
		s.Page = 1
	}
	return s
}

// WithDateFilter は日付絞り込みを変更する。
func (s ListState) WithDateFilter(f DateFilter) ListState {
	if f != s.DateFilter {
		s.DateFilter = f
		s.Page = 1
	}
	return s
}

// WithSort は並び替えを変更する。キーが変わった場合のみページを1に戻す。
func (s ListState) WithSort(sort Sort) ListState {
	if sort.Key != s.Sort.Key {
		s.Page = 1
	}
	s.Sort = sort
	return s
}

// WithPage はページを変更する。
func (s ListState) WithPage(page int) ListState {
	s.Page = page
	return s
}

// Normalize は未定義の値を既定値に置き換える。
func (s ListState) Normalize() ListState {
	def := DefaultListState()
	if !s.DateFilter.Valid() {
		s.DateFilter = def.DateFilter
	}
	if !s.Sort.Key.Valid() {
		s.Sort.Key = def.Sort.Key
	}
	if s.Sort.Direction != Ascending && s.Sort.Direction != Descending {
		s.Sort.Direction = def.Sort.Direction
	}
	if s.Page < 1 {
		s.Page = 1
	}
	return s
}

// Change は一覧表示状態への変更要求。nilのフィールドは変更しない。
type Change struct {
	Search     *string
	DateFilter *DateFilter
	Sort       *Sort
	Page       *int
}

// Apply は変更を適用する。ページ指定を先に適用するため、
// 同時に絞り込み条件が変わった場合はページのリセットが優先される。
func (s ListState) Apply(c Change) ListState {
	if c.Page != nil {
		s = s.WithPage(*c.Page)
	}
	if c.Search != nil {
		s = s.WithSearch(*c.Search)
	}
	if c.DateFilter != nil {
		s = s.WithDateFilter(*c.DateFilter)
	}
	if c.Sort != nil {
		s = s.WithSort(*c.Sort)
	}
	return s.Normalize()
}

// ClampPage はページ番号を 1..totalPages の範囲に補正する。0ページの場合は1を返す。
func ClampPage(page, totalPages int) int {
	if page < 1 || totalPages < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
