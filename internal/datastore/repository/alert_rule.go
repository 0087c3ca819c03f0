// Package repository defines persistence interfaces and their GORM
// implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
)

// ErrAlertRuleNotFound is returned when a rule lookup matches no row.
var ErrAlertRuleNotFound = errors.New("alert rule not found")

// AlertRuleRepository handles alert rule CRUD and history operations.
type AlertRuleRepository interface {
	// Rule CRUD
	ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	UpdateRule(ctx context.Context, rule *entities.AlertRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, enabled bool) error

	// Bulk operations
	GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error)
	SetLastTriggered(ctx context.Context, id uint, at time.Time) error
	CountRulesByName(ctx context.Context, tenantID, name string) (int64, error)

	// History
	SaveHistory(ctx context.Context, history *entities.AlertHistory) error
	ListHistory(ctx context.Context, filter AlertHistoryFilter) ([]entities.AlertHistory, int64, error)
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertRuleFilter controls rule listing queries.
type AlertRuleFilter struct {
	TenantID string
	Enabled  *bool
	BuiltIn  *bool
	Priority string
}

// AlertHistoryFilter controls history listing queries.
type AlertHistoryFilter struct {
	TenantID string
	RuleID   uint
	Limit    int
	Offset   int
}
