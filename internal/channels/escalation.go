package channels

import (
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// EscalationClient pushes critical alerts to on-call services (PagerDuty,
// OpsGenie, ntfy, Slack and anything else with a shoutrrr URL scheme).
type EscalationClient struct{}

func NewEscalationClient() *EscalationClient {
	return &EscalationClient{}
}

// Notify sends message to the service identified by serviceURL. The URL is
// parsed per call so rules can point at different services without a shared
// sender registry.
func (c *EscalationClient) Notify(serviceURL, message string) error {
	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return fmt.Errorf("parsing escalation service URL: %w", err)
	}
	errs := sender.Send(message, &types.Params{})
	return errors.Join(errs...)
}
