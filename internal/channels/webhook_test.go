package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookClient_Post(t *testing.T) {
	client := NewWebhookClient(5 * time.Second)
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, "https://hooks.acme.com/alerts",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "pulseboard-webhook/1.0", req.Header.Get("User-Agent"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	err := client.Post(context.Background(), "https://hooks.acme.com/alerts",
		map[string]string{"rule_name": "Negative feedback"})
	require.NoError(t, err)
	assert.Equal(t, "Negative feedback", captured["rule_name"])
}

func TestWebhookClient_PostNon2xxIsError(t *testing.T) {
	client := NewWebhookClient(5 * time.Second)
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://hooks.acme.com/alerts",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream error"))

	err := client.Post(context.Background(), "https://hooks.acme.com/alerts", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWebhookClient_PostUnencodablePayload(t *testing.T) {
	client := NewWebhookClient(5 * time.Second)

	err := client.Post(context.Background(), "https://hooks.acme.com/alerts", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding webhook payload")
}
