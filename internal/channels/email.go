// Package channels implements the outbound delivery clients used by the
// notification queues: transactional email, SMS, webhooks, and escalation
// pushes.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/k3a/html2text"

	"github.com/pulseboard/pulseboard/internal/notify"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// EmailClient sends alert emails through the SendGrid v3 mail API.
type EmailClient struct {
	apiKey      string
	fromAddress string
	fromName    string
	endpoint    string
	httpClient  *http.Client
}

// NewEmailClient creates a SendGrid client. The zero timeout of the
// embedded http.Client is replaced with 15s so a stalled API call cannot
// wedge a queue worker.
func NewEmailClient(apiKey, fromAddress, fromName string) *EmailClient {
	return &EmailClient{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		endpoint:    sendGridEndpoint,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMessage struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send implements notify.Sender for email requests. A plain-text part is
// derived from the HTML body so text-only clients still get a readable
// message.
func (c *EmailClient) Send(ctx context.Context, req notify.EmailRequest) (notify.DeliveryStatus, error) {
	status := notify.DeliveryStatus{
		MessageID: uuid.NewString(),
		Channel:   "email",
		Timestamp: time.Now(),
		Recipient: strings.Join(req.To, ","),
	}

	to := make([]sgAddress, 0, len(req.To))
	for _, addr := range req.To {
		to = append(to, sgAddress{Email: addr})
	}
	msg := sgMessage{
		Personalizations: []sgPersonalization{{To: to}},
		From:             sgAddress{Email: c.fromAddress, Name: c.fromName},
		Subject:          req.Subject,
		Content: []sgContent{
			{Type: "text/plain", Value: html2text.HTML2Text(req.HTML)},
			{Type: "text/html", Value: req.HTML},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		status.Status = notify.DeliveryStatusFailed
		status.Error = err.Error()
		return status, fmt.Errorf("encoding mail payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		status.Status = notify.DeliveryStatusFailed
		status.Error = err.Error()
		return status, fmt.Errorf("building mail request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		status.Status = notify.DeliveryStatusFailed
		status.Error = err.Error()
		return status, fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		status.Status = notify.DeliveryStatusFailed
		status.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		return status, fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}

	if id := resp.Header.Get("X-Message-Id"); id != "" {
		status.MessageID = id
	}
	status.Status = notify.DeliveryStatusSent
	return status, nil
}
