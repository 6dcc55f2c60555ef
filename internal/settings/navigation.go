// Package settings はユーザーごとのナビゲーション表示状態を永続化する。
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// navGroupsKey はuser_settingsに保存するナビゲーショングループ展開状態のキー。
const navGroupsKey = "nav_groups"

// maxGroups は1ユーザーが保存できるグループ数の上限。
const maxGroups = 64

// NavGroups はナビゲーショングループのキーと展開状態の対応。
type NavGroups map[string]bool

// Service はナビゲーション表示状態のサービス層。
type Service struct {
	repo repository.SettingsRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.SettingsRepository) *Service {
	return &Service{repo: repo}
}

// Navigation は保存済みの展開状態を返す。
// 未保存または破損している場合は空のマップを返し、エラーにはしない。
func (s *Service) Navigation(ctx context.Context, userID string) NavGroups {
	raw, ok, err := s.repo.Get(ctx, userID, navGroupsKey)
	if err != nil {
		slog.Warn("ナビゲーション状態の読み込みに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return NavGroups{}
	}
	if !ok {
		return NavGroups{}
	}

	groups := NavGroups{}
	if err := json.Unmarshal([]byte(raw), &groups); err != nil || groups == nil {
		slog.Warn("ナビゲーション状態が破損しているため初期化します",
			slog.String("user_id", userID),
		)
		return NavGroups{}
	}
	return groups
}

// SaveNavigation は展開状態を丸ごと保存する。
func (s *Service) SaveNavigation(ctx context.Context, userID string, groups NavGroups) (NavGroups, error) {
	if groups == nil {
		groups = NavGroups{}
	}
	if len(groups) > maxGroups {
		return nil, model.NewValidationError("groups", fmt.Sprintf("グループ数は%d件までです", maxGroups))
	}
	for key := range groups {
		if strings.TrimSpace(key) == "" {
			return nil, model.NewValidationError("groups", "グループキーが空です")
		}
	}

	data, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to encode navigation groups: %w", err)
	}
	if err := s.repo.Put(ctx, userID, navGroupsKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to save navigation groups: %w", err)
	}
	return groups, nil
}

// Toggle は1つのグループの展開状態を反転して保存する。未保存のグループは閉じた状態とみなす。
func (s *Service) Toggle(ctx context.Context, userID, group string) (NavGroups, error) {
	groups := s.Navigation(ctx, userID)
	groups[group] = !groups[group]
	return s.SaveNavigation(ctx, userID, groups)
}
