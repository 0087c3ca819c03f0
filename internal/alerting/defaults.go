package alerting

import (
	"context"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
)

// DefaultRules returns the starter alert rules created for a new tenant.
func DefaultRules(tenantID string) []entities.AlertRule {
	return []entities.AlertRule{
		{
			TenantID:    tenantID,
			Name:        "Negative feedback",
			Description: "Alerts when a customer leaves a rating below 3",
			Enabled:     true,
			BuiltIn:     true,
			Priority:    PriorityHigh,
			CooldownMin: 30,
			Conditions: []entities.AlertCondition{
				{Type: ConditionRatingThreshold, Field: FieldOverallRating, Operator: OperatorLessThan, Value: "3", SortOrder: 0},
			},
			Actions: []entities.AlertAction{
				{Type: ActionNotification, SortOrder: 0},
			},
		},
		{
			TenantID:    tenantID,
			Name:        "Complaint keywords",
			Description: "Alerts when feedback text mentions common complaint terms",
			Enabled:     true,
			BuiltIn:     true,
			Priority:    PriorityMedium,
			CooldownMin: 60,
			Conditions: []entities.AlertCondition{
				{Type: ConditionKeywordDetection, Field: FieldFeedbackText, Operator: OperatorContains, Value: "terrible,awful,refund,complaint,rude", SortOrder: 0},
			},
			Actions: []entities.AlertAction{
				{Type: ActionNotification, SortOrder: 0},
			},
		},
	}
}

// SeedDefaultRules ensures the built-in rules exist for a tenant. It checks
// by name so partial seeds from previous runs self-heal on restart.
func SeedDefaultRules(ctx context.Context, repo repository.AlertRuleRepository, tenantID string, log logger.Logger) error {
	var created int
	for _, rule := range DefaultRules(tenantID) {
		count, err := repo.CountRulesByName(ctx, tenantID, rule.Name)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := repo.CreateRule(ctx, &rule); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Info("seeded default alert rules",
			logger.String("tenant_id", tenantID),
			logger.Int("created", created))
	}
	return nil
}
