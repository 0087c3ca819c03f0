package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/notify"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// SMSClient sends alert texts through the Twilio Messages API.
type SMSClient struct {
	accountSID string
	authToken  string
	fromNumber string
	apiBase    string
	httpClient *http.Client
}

func NewSMSClient(accountSID, authToken, fromNumber string) *SMSClient {
	return &SMSClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		apiBase:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send implements notify.Sender for SMS requests.
func (c *SMSClient) Send(ctx context.Context, req notify.SMSRequest) (notify.DeliveryStatus, error) {
	status := notify.DeliveryStatus{
		MessageID: uuid.NewString(),
		Channel:   "sms",
		Timestamp: time.Now(),
		Recipient: req.To,
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.fromNumber)
	form.Set("Body", req.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.apiBase, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		status.Status = notify.DeliveryStatusFailed
		status.Error = err.Error()
		return status, fmt.Errorf("building SMS request: %w", err)
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		status.Status = notify.DeliveryStatusFailed
		status.Error = err.Error()
		return status, fmt.Errorf("sending SMS: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		var twErr twilioResponse
		detail := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &twErr) == nil && twErr.Message != "" {
			detail = twErr.Message
		}
		status.Status = notify.DeliveryStatusFailed
		status.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, detail)
		return status, fmt.Errorf("SMS API returned status %d", resp.StatusCode)
	}

	var tw twilioResponse
	if json.Unmarshal(body, &tw) == nil && tw.SID != "" {
		status.MessageID = tw.SID
	}
	status.Status = notify.DeliveryStatusSent
	return status, nil
}
