package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/observability/metrics"
)

// EmailRequest is one queued email delivery.
type EmailRequest struct {
	TenantID string
	To       []string
	Subject  string
	HTML     string
}

// SMSRequest is one queued SMS delivery.
type SMSRequest struct {
	TenantID string
	To       string
	Body     string
}

// WebhookPayload is the JSON body POSTed to tenant webhook URLs.
type WebhookPayload struct {
	Alert     *alerting.TriggerResult `json:"alert"`
	Feedback  map[string]any          `json:"feedback"`
	Timestamp time.Time               `json:"timestamp"`
}

// OptInChecker gates SMS deliveries on recipient consent.
type OptInChecker interface {
	IsOptedIn(ctx context.Context, phone, tenantID string) bool
}

// WebhookSender performs a single best-effort HTTP POST.
type WebhookSender interface {
	Post(ctx context.Context, url string, payload any) error
}

// EscalationSender pushes a message to an external escalation service URL.
type EscalationSender interface {
	Notify(serviceURL, message string) error
}

// Broadcaster fans an alert out to connected realtime sessions.
type Broadcaster interface {
	BroadcastAlert(tenantID string, data any, severity string)
}

// webhookPostTimeout bounds the single best-effort webhook attempt.
const webhookPostTimeout = 10 * time.Second

// Dispatcher routes trigger results to their configured delivery channels.
// Dispatch enqueues and returns immediately; it never waits on delivery.
// A failure in one action does not block the others.
type Dispatcher struct {
	emailQueue  *Queue[EmailRequest]
	smsQueue    *Queue[SMSRequest]
	webhooks    WebhookSender
	escalations EscalationSender
	broadcaster Broadcaster
	optIns      OptInChecker
	templates   *TemplateStore
	log         logger.Logger
}

// NewDispatcher creates a dispatcher. webhooks, escalations, and broadcaster
// may be nil when the corresponding channel is not configured.
func NewDispatcher(
	emailQueue *Queue[EmailRequest],
	smsQueue *Queue[SMSRequest],
	webhooks WebhookSender,
	escalations EscalationSender,
	broadcaster Broadcaster,
	optIns OptInChecker,
	templates *TemplateStore,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		emailQueue:  emailQueue,
		smsQueue:    smsQueue,
		webhooks:    webhooks,
		escalations: escalations,
		broadcaster: broadcaster,
		optIns:      optIns,
		templates:   templates,
		log:         log,
	}
}

// Dispatch implements alerting.TriggerFunc. Every trigger is broadcast to
// the tenant's realtime sessions regardless of the rule's action list; the
// configured actions are then routed to their channels.
func (d *Dispatcher) Dispatch(rule *entities.AlertRule, event *alerting.FeedbackEvent, result *alerting.TriggerResult) {
	if d.broadcaster != nil {
		d.broadcaster.BroadcastAlert(rule.TenantID, result, result.Severity)
	}

	for i := range rule.Actions {
		action := &rule.Actions[i]
		switch action.Type {
		case alerting.ActionEmail:
			d.dispatchEmail(action, result)
		case alerting.ActionSMS:
			d.dispatchSMS(action, result)
		case alerting.ActionWebhook:
			d.dispatchWebhook(action, event, result)
		case alerting.ActionNotification:
			// Realtime broadcast above already covers the in-app bell.
		case alerting.ActionEscalation:
			d.dispatchEscalation(action, result)
		default:
			d.log.Warn("unknown alert action type",
				logger.String("type", action.Type),
				logger.Uint64("rule_id", uint64(rule.ID)))
		}
	}
}

func (d *Dispatcher) dispatchEmail(action *entities.AlertAction, result *alerting.TriggerResult) {
	if d.emailQueue == nil {
		return
	}
	recipients := action.RecipientList()
	if len(recipients) == 0 {
		d.log.Warn("email action has no recipients",
			logger.Uint64("rule_id", uint64(action.RuleID)))
		return
	}

	tmpl := d.templates.GetOrDefault(action.TemplateID, TemplateAlertEmail)
	data := templateData(result)
	priority := PriorityNormal
	if result.Severity == alerting.SeverityCritical {
		priority = PriorityUrgent
	}

	id := d.emailQueue.Enqueue(EmailRequest{
		TenantID: result.TenantID,
		To:       recipients,
		Subject:  RenderTemplate(tmpl.Subject, data),
		HTML:     RenderTemplate(tmpl.Body, data),
	}, priority, time.Duration(action.DelayMin)*time.Minute)

	d.log.Debug("email enqueued",
		logger.String("item_id", id),
		logger.String("priority", priority.String()),
		logger.Int("recipients", len(recipients)))
}

func (d *Dispatcher) dispatchSMS(action *entities.AlertAction, result *alerting.TriggerResult) {
	if d.smsQueue == nil {
		return
	}
	tmpl := d.templates.GetOrDefault(action.TemplateID, TemplateAlertSMS)
	body := RenderTemplate(tmpl.Body, templateData(result))
	priority := PriorityNormal
	if result.Severity == alerting.SeverityCritical {
		priority = PriorityUrgent
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, phone := range action.PhoneList() {
		if d.optIns != nil && !d.optIns.IsOptedIn(ctx, phone, result.TenantID) {
			d.log.Warn("skipping SMS to non-opted-in number",
				logger.String("tenant_id", result.TenantID),
				logger.Uint64("rule_id", uint64(action.RuleID)))
			metrics.SMSBlocked.Inc()
			continue
		}
		d.smsQueue.Enqueue(SMSRequest{
			TenantID: result.TenantID,
			To:       phone,
			Body:     body,
		}, priority, time.Duration(action.DelayMin)*time.Minute)
	}
}

// dispatchWebhook fires a single best-effort POST. No retry: a webhook
// consumer that needs reliability should poll the API instead.
func (d *Dispatcher) dispatchWebhook(action *entities.AlertAction, event *alerting.FeedbackEvent, result *alerting.TriggerResult) {
	if d.webhooks == nil || action.URL == "" {
		return
	}
	payload := WebhookPayload{
		Alert:     result,
		Feedback:  event.Properties(),
		Timestamp: time.Now(),
	}
	url := action.URL
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookPostTimeout)
		defer cancel()
		if err := d.webhooks.Post(ctx, url, payload); err != nil {
			d.log.Warn("webhook delivery failed",
				logger.String("url", url),
				logger.Error(err))
			metrics.Deliveries.WithLabelValues("webhook", "failed").Inc()
			return
		}
		metrics.Deliveries.WithLabelValues("webhook", "sent").Inc()
	}()
}

func (d *Dispatcher) dispatchEscalation(action *entities.AlertAction, result *alerting.TriggerResult) {
	if d.escalations == nil || action.URL == "" {
		return
	}
	serviceURL := action.URL
	message := result.Message
	go func() {
		if err := d.escalations.Notify(serviceURL, message); err != nil {
			d.log.Warn("escalation delivery failed", logger.Error(err))
			metrics.Deliveries.WithLabelValues("escalation", "failed").Inc()
			return
		}
		metrics.Deliveries.WithLabelValues("escalation", "sent").Inc()
	}()
}

func templateData(result *alerting.TriggerResult) map[string]string {
	return map[string]string{
		"rule_name":     result.RuleName,
		"severity":      result.Severity,
		"message":       result.Message,
		"customer_name": result.CustomerName,
		"rating":        strconv.Itoa(result.Rating),
		"tenant_id":     result.TenantID,
	}
}
