package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
)

// mockRuleRepo is an in-memory AlertRuleRepository for engine tests.
type mockRuleRepo struct {
	mu      sync.Mutex
	rules   []entities.AlertRule
	history []entities.AlertHistory
}

func (m *mockRuleRepo) ListRules(_ context.Context, filter repository.AlertRuleFilter) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for _, r := range m.rules {
		if filter.TenantID != "" && r.TenantID != filter.TenantID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRuleRepo) GetRule(_ context.Context, id uint) (*entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			r := m.rules[i]
			return &r, nil
		}
	}
	return nil, repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) CreateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = uint(len(m.rules) + 1)
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *mockRuleRepo) UpdateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) DeleteRule(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) ToggleRule(_ context.Context, id uint, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].Enabled = enabled
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) GetEnabledRules(_ context.Context) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for _, r := range m.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) SetLastTriggered(_ context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].LastTriggeredAt = &at
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) CountRulesByName(_ context.Context, tenantID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, r := range m.rules {
		if r.TenantID == tenantID && r.Name == name {
			count++
		}
	}
	return count, nil
}

func (m *mockRuleRepo) SaveHistory(_ context.Context, h *entities.AlertHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = uint(len(m.history) + 1)
	m.history = append(m.history, *h)
	return nil
}

func (m *mockRuleRepo) ListHistory(_ context.Context, filter repository.AlertHistoryFilter) ([]entities.AlertHistory, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertHistory
	for _, h := range m.history {
		if filter.TenantID != "" && h.TenantID != filter.TenantID {
			continue
		}
		out = append(out, h)
	}
	return out, int64(len(out)), nil
}

func (m *mockRuleRepo) DeleteHistoryBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []entities.AlertHistory
	var deleted int64
	for _, h := range m.history {
		if h.FiredAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, h)
	}
	m.history = kept
	return deleted, nil
}

func (m *mockRuleRepo) historyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func ratingRule(id uint, tenantID string, enabled bool) entities.AlertRule {
	return entities.AlertRule{
		ID:          id,
		TenantID:    tenantID,
		Name:        "Negative feedback",
		Enabled:     enabled,
		Priority:    PriorityHigh,
		CooldownMin: 30,
		Conditions: []entities.AlertCondition{
			{Type: ConditionRatingThreshold, Field: FieldOverallRating, Operator: OperatorLessThan, Value: "3"},
		},
	}
}

func newTestEngine(t *testing.T, repo *mockRuleRepo, triggerFunc TriggerFunc) *Engine {
	t.Helper()
	engine := NewEngine(repo, NewEvaluator(&mockHistory{}, testLogger()), triggerFunc, 30*time.Minute, testLogger())
	require.NoError(t, engine.RefreshRules(t.Context()))
	return engine
}

func TestEngine_RatingRuleFiresOnlyBelowThreshold(t *testing.T) {
	t.Parallel()

	for rating := 1; rating <= 5; rating++ {
		repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}
		engine := newTestEngine(t, repo, nil)

		results := engine.EvaluateFeedback(t.Context(), testEvent(rating, ""))
		if rating < 3 {
			require.Len(t, results, 1, "rating %d should trigger", rating)
			assert.Equal(t, uint(1), results[0].RuleID)
		} else {
			assert.Empty(t, results, "rating %d should not trigger", rating)
		}
	}
}

func TestEngine_DisabledRuleNeverFires(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", false)}}
	engine := newTestEngine(t, repo, nil)

	results := engine.EvaluateFeedback(t.Context(), testEvent(1, ""))
	assert.Empty(t, results)
	assert.Zero(t, repo.historyCount())
}

func TestEngine_AndSemantics(t *testing.T) {
	t.Parallel()
	rule := ratingRule(1, "acme", true)
	rule.Conditions = append(rule.Conditions, entities.AlertCondition{
		Type: ConditionKeywordDetection, Field: FieldFeedbackText, Operator: OperatorContains, Value: "refund",
	})
	repo := &mockRuleRepo{rules: []entities.AlertRule{rule}}
	engine := newTestEngine(t, repo, nil)

	t.Run("all conditions met", func(t *testing.T) {
		results := engine.EvaluateFeedback(t.Context(), testEvent(1, "refund please"))
		require.Len(t, results, 1)
		assert.Equal(t, []string{ConditionRatingThreshold, ConditionKeywordDetection}, results[0].MatchedConditions)
	})

	t.Run("one condition fails", func(t *testing.T) {
		// New engine to avoid the cooldown from the previous subtest.
		engine := newTestEngine(t, repo, nil)
		results := engine.EvaluateFeedback(t.Context(), testEvent(1, "all good"))
		assert.Empty(t, results)
	})
}

func TestEngine_CooldownSuppressesRepeatTriggers(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}
	engine := newTestEngine(t, repo, nil)

	first := engine.EvaluateFeedback(t.Context(), testEvent(1, ""))
	require.Len(t, first, 1)

	second := engine.EvaluateFeedback(t.Context(), testEvent(1, ""))
	assert.Empty(t, second, "second trigger inside cooldown window must be suppressed")
	assert.Equal(t, 1, repo.historyCount())
}

func TestEngine_CooldownExpiryAllowsRetrigger(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}
	engine := newTestEngine(t, repo, nil)

	require.Len(t, engine.EvaluateFeedback(t.Context(), testEvent(1, "")), 1)

	// Arm an already-expired window directly instead of sleeping.
	engine.cooldowns.mu.Lock()
	engine.cooldowns.expires[1] = time.Now().Add(-time.Second)
	engine.cooldowns.mu.Unlock()

	require.Len(t, engine.EvaluateFeedback(t.Context(), testEvent(2, "")), 1)
	assert.Equal(t, 2, repo.historyCount())
}

func TestEngine_SeverityDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority string
		rating   int
		want     string
	}{
		{"rating 1 overrides to critical", PriorityLow, 1, SeverityCritical},
		{"rating 2 overrides to critical", PriorityMedium, 2, SeverityCritical},
		{"critical priority baseline", PriorityCritical, 1, SeverityCritical},
		{"override beats high priority baseline", PriorityHigh, 2, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rule := ratingRule(1, "acme", true)
			rule.Priority = tt.priority
			repo := &mockRuleRepo{rules: []entities.AlertRule{rule}}
			engine := newTestEngine(t, repo, nil)

			results := engine.EvaluateFeedback(t.Context(), testEvent(tt.rating, ""))
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Severity)
		})
	}

	t.Run("priority baseline without rating condition", func(t *testing.T) {
		t.Parallel()
		rule := entities.AlertRule{
			ID: 1, TenantID: "acme", Name: "Keywords", Enabled: true,
			Priority: PriorityMedium, CooldownMin: 30,
			Conditions: []entities.AlertCondition{
				{Type: ConditionKeywordDetection, Field: FieldFeedbackText, Operator: OperatorContains, Value: "refund"},
			},
		}
		repo := &mockRuleRepo{rules: []entities.AlertRule{rule}}
		engine := newTestEngine(t, repo, nil)

		results := engine.EvaluateFeedback(t.Context(), testEvent(1, "refund"))
		require.Len(t, results, 1)
		assert.Equal(t, SeverityWarning, results[0].Severity, "no rating condition matched, priority decides")
	})
}

func TestEngine_EvaluationErrorIsolation(t *testing.T) {
	t.Parallel()

	// Rule 1 needs a history query that fails; rule 2 is a pure rating rule.
	volumeRule := entities.AlertRule{
		ID: 1, TenantID: "acme", Name: "Volume spike", Enabled: true,
		Priority: PriorityHigh, CooldownMin: 30,
		Conditions: []entities.AlertCondition{
			{Type: ConditionVolumeBased, Operator: OperatorGreaterThan, Value: "10"},
		},
	}
	repo := &mockRuleRepo{rules: []entities.AlertRule{volumeRule, ratingRule(2, "acme", true)}}

	evaluator := NewEvaluator(&mockHistory{countErr: context.DeadlineExceeded}, testLogger())
	engine := NewEngine(repo, evaluator, nil, 30*time.Minute, testLogger())
	require.NoError(t, engine.RefreshRules(t.Context()))

	results := engine.EvaluateFeedback(t.Context(), testEvent(1, ""))
	require.Len(t, results, 1, "healthy rule must still fire when another rule errors")
	assert.Equal(t, uint(2), results[0].RuleID)
}

func TestEngine_TenantIsolation(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}
	engine := newTestEngine(t, repo, nil)

	event := testEvent(1, "")
	event.TenantID = "globex"
	assert.Empty(t, engine.EvaluateFeedback(t.Context(), event))
}

func TestEngine_HandleEventDispatches(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}

	var mu sync.Mutex
	var dispatched []TriggerResult
	trigger := func(rule *entities.AlertRule, event *FeedbackEvent, result *TriggerResult) {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, *result)
	}
	engine := newTestEngine(t, repo, trigger)

	engine.HandleEvent(testEvent(1, ""))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "Negative feedback", dispatched[0].RuleName)
	assert.Equal(t, SeverityCritical, dispatched[0].Severity)
}

func TestEngine_TestRuleHasNoSideEffects(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{rules: []entities.AlertRule{ratingRule(1, "acme", true)}}
	engine := newTestEngine(t, repo, nil)

	rule := repo.rules[0]
	result := engine.TestRule(t.Context(), &rule, testEvent(1, ""))
	assert.True(t, result.Triggered)
	assert.Equal(t, SeverityCritical, result.Severity)
	assert.Zero(t, repo.historyCount(), "test evaluation must not record history")

	// Cooldown must not be armed by a test evaluation.
	assert.False(t, engine.cooldowns.IsSuppressed(1))
}

func TestSeedDefaultRules(t *testing.T) {
	t.Parallel()
	repo := &mockRuleRepo{}

	require.NoError(t, SeedDefaultRules(t.Context(), repo, "acme", testLogger()))
	assert.Len(t, repo.rules, 2)

	// Second seed is a no-op.
	require.NoError(t, SeedDefaultRules(t.Context(), repo, "acme", testLogger()))
	assert.Len(t, repo.rules, 2)

	// Another tenant gets its own copies.
	require.NoError(t, SeedDefaultRules(t.Context(), repo, "globex", testLogger()))
	assert.Len(t, repo.rules, 4)
}
