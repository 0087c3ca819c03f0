package alerting

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/logger"
)

// defaultVolumeWindowMin is the trailing window for volume/time conditions
// that do not configure one.
const defaultVolumeWindowMin = 60

// HistoryReader answers the bounded time-range queries needed by
// volume_based and time_based conditions.
type HistoryReader interface {
	CountSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	LastCreatedAt(ctx context.Context, tenantID string) (*time.Time, error)
}

// Evaluator checks individual rule conditions against feedback events.
// rating_threshold, keyword_detection, and custom conditions are pure;
// volume_based and time_based issue a bounded history lookup.
type Evaluator struct {
	history HistoryReader
	log     logger.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(history HistoryReader, log logger.Logger) *Evaluator {
	return &Evaluator{history: history, log: log}
}

// Evaluate returns whether the condition matches the event. Malformed
// conditions (bad regex, bad expression, unknown operator) are logged and
// treated as non-matches; only history-query failures surface as errors.
func (ev *Evaluator) Evaluate(ctx context.Context, cond *entities.AlertCondition, event *FeedbackEvent) (bool, error) {
	switch cond.Type {
	case ConditionRatingThreshold:
		return ev.evaluateRating(cond, event), nil
	case ConditionKeywordDetection:
		return ev.evaluateKeywords(cond, event), nil
	case ConditionVolumeBased:
		return ev.evaluateVolume(ctx, cond, event)
	case ConditionTimeBased:
		return ev.evaluateRecency(ctx, cond, event)
	case ConditionCustom:
		return ev.evaluateCustom(cond, event), nil
	default:
		ev.log.Warn("unknown condition type",
			logger.String("type", cond.Type),
			logger.Uint64("rule_id", uint64(cond.RuleID)))
		return false, nil
	}
}

func (ev *Evaluator) evaluateRating(cond *entities.AlertCondition, event *FeedbackEvent) bool {
	field := cond.Field
	if field == "" {
		field = FieldOverallRating
	}
	propVal, ok := event.Properties()[field]
	if !ok {
		return false
	}
	propFloat, err := toFloat64(propVal)
	if err != nil {
		return false
	}
	threshold, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false
	}
	return compareNumeric(cond.Operator, propFloat, threshold)
}

func (ev *Evaluator) evaluateKeywords(cond *entities.AlertCondition, event *FeedbackEvent) bool {
	field := cond.Field
	if field == "" {
		field = FieldFeedbackText
	}
	propVal, ok := event.Properties()[field]
	if !ok {
		return false
	}
	text := strings.ToLower(fmt.Sprintf("%v", propVal))

	switch cond.Operator {
	case OperatorContains:
		return containsAnyKeyword(text, cond.Keywords())
	case OperatorNotContains:
		return !containsAnyKeyword(text, cond.Keywords())
	case OperatorRegex:
		re, err := regexp.Compile("(?i)" + cond.Value)
		if err != nil {
			ev.log.Warn("invalid keyword regex, treating as non-match",
				logger.String("pattern", cond.Value),
				logger.Uint64("rule_id", uint64(cond.RuleID)),
				logger.Error(err))
			return false
		}
		return re.MatchString(text)
	default:
		return false
	}
}

func (ev *Evaluator) evaluateVolume(ctx context.Context, cond *entities.AlertCondition, event *FeedbackEvent) (bool, error) {
	window := cond.WindowMin
	if window <= 0 {
		window = defaultVolumeWindowMin
	}
	since := event.Timestamp.Add(-time.Duration(window) * time.Minute)
	count, err := ev.history.CountSince(ctx, event.TenantID, since)
	if err != nil {
		return false, fmt.Errorf("volume condition history query: %w", err)
	}
	threshold, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false, nil
	}
	return compareNumeric(cond.Operator, float64(count), threshold), nil
}

// evaluateRecency compares the minutes elapsed since the tenant's previous
// feedback against the condition value. No prior feedback means no recency
// to measure, so the condition does not match.
func (ev *Evaluator) evaluateRecency(ctx context.Context, cond *entities.AlertCondition, event *FeedbackEvent) (bool, error) {
	last, err := ev.history.LastCreatedAt(ctx, event.TenantID)
	if err != nil {
		return false, fmt.Errorf("time condition history query: %w", err)
	}
	if last == nil {
		return false, nil
	}
	elapsedMin := event.Timestamp.Sub(*last).Minutes()
	if elapsedMin < 0 {
		elapsedMin = 0
	}
	threshold, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false, nil
	}
	return compareNumeric(cond.Operator, elapsedMin, threshold), nil
}

func (ev *Evaluator) evaluateCustom(cond *entities.AlertCondition, event *FeedbackEvent) bool {
	expr, err := ParseExpression(cond.Value)
	if err != nil {
		ev.log.Warn("invalid custom expression, treating as non-match",
			logger.String("expression", cond.Value),
			logger.Uint64("rule_id", uint64(cond.RuleID)),
			logger.Error(err))
		return false
	}
	return expr.Eval(event.Properties())
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func compareNumeric(operator string, value, threshold float64) bool {
	switch operator {
	case OperatorEquals:
		return value == threshold
	case OperatorNotEquals:
		return value != threshold
	case OperatorGreaterThan:
		return value > threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorLessOrEqual:
		return value <= threshold
	default:
		return false
	}
}

func toFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", val)
	}
}
