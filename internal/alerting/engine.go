package alerting

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/observability/metrics"
)

const (
	// saveHistoryTimeout is the context deadline for persisting alert history.
	saveHistoryTimeout = 3 * time.Second
	// cleanupTimeout is the context deadline for the periodic history deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the maintenance goroutine runs.
	cleanupInterval = 1 * time.Hour
	// evaluateTimeout bounds the history queries issued during one
	// evaluation pass.
	evaluateTimeout = 5 * time.Second
)

// TriggerFunc is called once per fired rule. Receives the rule, the
// triggering event, and the trigger result.
type TriggerFunc func(rule *entities.AlertRule, event *FeedbackEvent, result *TriggerResult)

// Engine evaluates incoming feedback events against each tenant's configured
// rules. Evaluation is synchronous and stateless aside from the cooldown
// tracker, so events for different tenants may be evaluated concurrently.
type Engine struct {
	repo            repository.AlertRuleRepository
	evaluator       *Evaluator
	cooldowns       *CooldownTracker
	triggerFunc     TriggerFunc
	defaultCooldown time.Duration
	log             logger.Logger

	// Cached enabled rules by tenant (refreshed on startup and rule edits)
	rules   map[string][]entities.AlertRule
	rulesMu sync.RWMutex

	cleanupStop chan struct{}
}

// NewEngine creates a new alerting rules engine. A zero defaultCooldown
// falls back to 30 minutes.
func NewEngine(repo repository.AlertRuleRepository, evaluator *Evaluator, triggerFunc TriggerFunc, defaultCooldown time.Duration, log logger.Logger) *Engine {
	if defaultCooldown <= 0 {
		defaultCooldown = 30 * time.Minute
	}
	return &Engine{
		repo:            repo,
		evaluator:       evaluator,
		cooldowns:       NewCooldownTracker(),
		triggerFunc:     triggerFunc,
		defaultCooldown: defaultCooldown,
		log:             log,
		rules:           make(map[string][]entities.AlertRule),
	}
}

// RefreshRules reloads enabled rules from the database.
// Call this on startup and whenever rules are modified via API.
func (e *Engine) RefreshRules(ctx context.Context) error {
	rules, err := e.repo.GetEnabledRules(ctx)
	if err != nil {
		return err
	}
	byTenant := make(map[string][]entities.AlertRule)
	for i := range rules {
		byTenant[rules[i].TenantID] = append(byTenant[rules[i].TenantID], rules[i])
	}
	e.rulesMu.Lock()
	e.rules = byTenant
	e.rulesMu.Unlock()
	return nil
}

// RuleCount returns the number of cached enabled rules across all tenants.
func (e *Engine) RuleCount() int {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	n := 0
	for _, rules := range e.rules {
		n += len(rules)
	}
	return n
}

// HandleEvent evaluates an event and dispatches every trigger result.
// Intended as an EventBus subscriber.
func (e *Engine) HandleEvent(event *FeedbackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()

	for _, result := range e.EvaluateFeedback(ctx, event) {
		rule := e.findRule(event.TenantID, result.RuleID)
		if rule == nil {
			continue
		}
		if e.triggerFunc != nil {
			e.triggerFunc(rule, event, &result)
		}
	}
}

// EvaluateFeedback runs the event against every enabled rule for its tenant
// and returns the trigger results. Firing rules have their cooldown armed
// and an alert history row recorded. An evaluation error on one rule never
// aborts evaluation of the others.
func (e *Engine) EvaluateFeedback(ctx context.Context, event *FeedbackEvent) []TriggerResult {
	e.rulesMu.RLock()
	rules := make([]entities.AlertRule, len(e.rules[event.TenantID]))
	copy(rules, e.rules[event.TenantID])
	e.rulesMu.RUnlock()

	var results []TriggerResult
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled || e.cooldowns.IsSuppressed(rule.ID) {
			continue
		}

		matched, ok := e.ruleMatches(ctx, rule, event)
		if !ok {
			continue
		}

		// Atomic check-and-arm: if a concurrent evaluation of the same
		// rule got here first, it owns the trigger.
		if !e.cooldowns.TryTrigger(rule.ID, e.cooldownWindow(rule)) {
			continue
		}

		result := e.fireRule(rule, event, matched)
		results = append(results, result)
	}
	return results
}

// ruleMatches evaluates all conditions with AND semantics, short-circuiting
// on the first failure. The matched conditions are returned for severity
// derivation. Evaluation errors are logged and treated as "did not match".
func (e *Engine) ruleMatches(ctx context.Context, rule *entities.AlertRule, event *FeedbackEvent) ([]entities.AlertCondition, bool) {
	matched := make([]entities.AlertCondition, 0, len(rule.Conditions))
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		ok, err := e.evaluator.Evaluate(ctx, cond, event)
		if err != nil {
			e.log.Error("condition evaluation failed, treating rule as not matched",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("condition_type", cond.Type),
				logger.Error(err))
			return nil, false
		}
		if !ok {
			return nil, false
		}
		matched = append(matched, *cond)
	}
	return matched, true
}

func (e *Engine) cooldownWindow(rule *entities.AlertRule) time.Duration {
	if rule.CooldownMin > 0 {
		return time.Duration(rule.CooldownMin) * time.Minute
	}
	return e.defaultCooldown
}

func (e *Engine) fireRule(rule *entities.AlertRule, event *FeedbackEvent, matched []entities.AlertCondition) TriggerResult {
	now := time.Now()
	severity := deriveSeverity(rule, event, matched)

	condNames := make([]string, 0, len(matched))
	for i := range matched {
		condNames = append(condNames, matched[i].Type)
	}

	result := TriggerResult{
		Triggered:         true,
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		TenantID:          rule.TenantID,
		Severity:          severity,
		Message:           renderMessage(rule, event),
		MatchedConditions: condNames,
		FeedbackID:        event.FeedbackID,
		CustomerName:      event.CustomerName,
		Rating:            event.Rating,
		Timestamp:         now,
	}

	metrics.AlertsTriggered.WithLabelValues(severity).Inc()

	eventJSON, err := json.Marshal(event.Properties())
	if err != nil {
		e.log.Error("failed to marshal event properties", logger.Error(err))
		eventJSON = []byte("{}")
	}
	history := &entities.AlertHistory{
		RuleID:    rule.ID,
		TenantID:  rule.TenantID,
		FiredAt:   now,
		Severity:  severity,
		Message:   result.Message,
		EventData: string(eventJSON),
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer saveCancel()
	if err := e.repo.SaveHistory(saveCtx, history); err != nil {
		e.log.Error("failed to save alert history",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
	}
	if err := e.repo.SetLastTriggered(saveCtx, rule.ID, now); err != nil {
		e.log.Error("failed to update rule last triggered time",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
	}

	return result
}

// TestRule evaluates a rule against a synthetic feedback event with no side
// effects: no cooldown check or arming, no history, no dispatch. Used by the
// rule test endpoint.
func (e *Engine) TestRule(ctx context.Context, rule *entities.AlertRule, event *FeedbackEvent) TriggerResult {
	matched, ok := e.ruleMatches(ctx, rule, event)
	if !ok {
		return TriggerResult{
			Triggered: false,
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			TenantID:  rule.TenantID,
			Timestamp: time.Now(),
		}
	}

	condNames := make([]string, 0, len(matched))
	for i := range matched {
		condNames = append(condNames, matched[i].Type)
	}
	return TriggerResult{
		Triggered:         true,
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		TenantID:          rule.TenantID,
		Severity:          deriveSeverity(rule, event, matched),
		Message:           renderMessage(rule, event),
		MatchedConditions: condNames,
		FeedbackID:        event.FeedbackID,
		CustomerName:      event.CustomerName,
		Rating:            event.Rating,
		Timestamp:         time.Now(),
	}
}

func (e *Engine) findRule(tenantID string, ruleID uint) *entities.AlertRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	rules := e.rules[tenantID]
	for i := range rules {
		if rules[i].ID == ruleID {
			rule := rules[i]
			return &rule
		}
	}
	return nil
}

// StartMaintenance starts a background goroutine that periodically deletes
// alert history older than retentionDays and sweeps expired cooldown
// entries. A retention of 0 disables history cleanup but keeps the sweep.
func (e *Engine) StartMaintenance(retentionDays int) {
	e.stopCleanup()
	e.rulesMu.Lock()
	e.cleanupStop = make(chan struct{})
	stopCh := e.cleanupStop
	e.rulesMu.Unlock()
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.cooldowns.Sweep()
				if retentionDays <= 0 {
					continue
				}
				cutoff := time.Now().AddDate(0, 0, -retentionDays)
				cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := e.repo.DeleteHistoryBefore(cleanupCtx, cutoff)
				cleanupCancel()
				if err != nil {
					e.log.Error("alert history cleanup failed", logger.Error(err))
				} else if deleted > 0 {
					e.log.Info("alert history cleanup completed",
						logger.Int64("deleted", deleted),
						logger.Int("retention_days", retentionDays))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// stopCleanup signals the maintenance goroutine to exit. Uses rulesMu to make
// the nil-check-then-close atomic, preventing double-close panics when
// Stop() and StartMaintenance() race.
func (e *Engine) stopCleanup() {
	e.rulesMu.Lock()
	ch := e.cleanupStop
	e.cleanupStop = nil
	e.rulesMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down background goroutines.
func (e *Engine) Stop() {
	e.stopCleanup()
}
