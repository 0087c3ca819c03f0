package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/notify"
)

func TestEmailClient_Send(t *testing.T) {
	client := NewEmailClient("sg-key", "alerts@pulseboard.io", "Pulseboard Alerts")
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	var captured sgMessage
	httpmock.RegisterResponder(http.MethodPost, sendGridEndpoint,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sg-key", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))

			resp := httpmock.NewStringResponse(http.StatusAccepted, "")
			resp.Header.Set("X-Message-Id", "sg-msg-123")
			return resp, nil
		})

	status, err := client.Send(context.Background(), notify.EmailRequest{
		TenantID: "acme",
		To:       []string{"ops@acme.com", "mgr@acme.com"},
		Subject:  "[critical] Negative feedback",
		HTML:     "<h2>Negative feedback</h2><p>Rating 1 from Dana</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, notify.DeliveryStatusSent, status.Status)
	assert.Equal(t, "sg-msg-123", status.MessageID)
	assert.Equal(t, "email", status.Channel)
	assert.Equal(t, "ops@acme.com,mgr@acme.com", status.Recipient)

	require.Len(t, captured.Personalizations, 1)
	assert.Equal(t, []sgAddress{{Email: "ops@acme.com"}, {Email: "mgr@acme.com"}}, captured.Personalizations[0].To)
	assert.Equal(t, "alerts@pulseboard.io", captured.From.Email)
	assert.Equal(t, "[critical] Negative feedback", captured.Subject)

	require.Len(t, captured.Content, 2)
	assert.Equal(t, "text/plain", captured.Content[0].Type)
	assert.Contains(t, captured.Content[0].Value, "Rating 1 from Dana")
	assert.NotContains(t, captured.Content[0].Value, "<h2>", "plain part must be stripped of markup")
	assert.Equal(t, "text/html", captured.Content[1].Type)
}

func TestEmailClient_SendAPIError(t *testing.T) {
	client := NewEmailClient("sg-key", "alerts@pulseboard.io", "")
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, sendGridEndpoint,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"errors":[{"message":"bad key"}]}`))

	status, err := client.Send(context.Background(), notify.EmailRequest{
		To:      []string{"ops@acme.com"},
		Subject: "x",
		HTML:    "<p>x</p>",
	})
	require.Error(t, err)
	assert.Equal(t, notify.DeliveryStatusFailed, status.Status)
	assert.Contains(t, status.Error, "status 401")
	assert.Contains(t, status.Error, "bad key")
}

func TestEmailClient_SendNetworkError(t *testing.T) {
	client := NewEmailClient("sg-key", "alerts@pulseboard.io", "")
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, sendGridEndpoint,
		httpmock.NewErrorResponder(context.DeadlineExceeded))

	status, err := client.Send(context.Background(), notify.EmailRequest{
		To:      []string{"ops@acme.com"},
		Subject: "x",
		HTML:    "<p>x</p>",
	})
	require.Error(t, err)
	assert.Equal(t, notify.DeliveryStatusFailed, status.Status)
}
