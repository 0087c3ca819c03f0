// Package optin manages SMS consent. Alert texts are only sent to numbers
// with an explicit opted_in record; inbound STOP keywords revoke consent.
package optin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
)

// Inbound keywords that revoke consent, per carrier requirements.
// Matching is case-insensitive on the trimmed message body.
var stopKeywords = map[string]bool{
	"STOP":        true,
	"STOPALL":     true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
}

// Inbound keywords that (re)grant consent.
var startKeywords = map[string]bool{
	"START":  true,
	"YES":    true,
	"UNSTOP": true,
}

const (
	// KeywordActionOptOut reports that an inbound message revoked consent.
	KeywordActionOptOut = "opt_out"
	// KeywordActionOptIn reports that an inbound message granted consent.
	KeywordActionOptIn = "opt_in"
	// KeywordActionNone reports that no keyword matched.
	KeywordActionNone = "none"
)

const (
	optOutResponse = "You have been unsubscribed and will receive no further messages. Reply START to resubscribe."
	optInResponse  = "You are subscribed to alerts. Reply STOP to unsubscribe."
)

// KeywordResult describes how an inbound SMS was handled.
type KeywordResult struct {
	Action       string `json:"action"`
	ResponseText string `json:"response_text"`
}

// cacheTTL bounds staleness of the consent cache. Opt-in state changes
// rarely, but an explicit OptIn/OptOut invalidates immediately.
const cacheTTL = 5 * time.Minute

// Registry answers consent checks for the SMS queue and records consent
// changes. Lookups are cached; writes go straight to the database and
// update the cache.
type Registry struct {
	repo  repository.OptInRepository
	cache *gocache.Cache
	log   logger.Logger
}

func NewRegistry(repo repository.OptInRepository, log logger.Logger) *Registry {
	return &Registry{
		repo:  repo,
		cache: gocache.New(cacheTTL, 10*time.Minute),
		log:   log,
	}
}

func cacheKey(phone, tenantID string) string {
	return tenantID + "|" + phone
}

// Status returns the consent state for a number. Numbers with no record are
// not_registered.
func (r *Registry) Status(ctx context.Context, phone, tenantID string) (string, error) {
	key := cacheKey(phone, tenantID)
	if v, ok := r.cache.Get(key); ok {
		return v.(string), nil
	}

	rec, err := r.repo.Get(ctx, phone, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrOptInNotFound) {
			r.cache.SetDefault(key, entities.OptInStatusNotRegistered)
			return entities.OptInStatusNotRegistered, nil
		}
		return "", fmt.Errorf("looking up opt-in status: %w", err)
	}

	r.cache.SetDefault(key, rec.Status)
	return rec.Status, nil
}

// IsOptedIn implements the dispatcher's consent gate. Only an explicit
// opted_in record passes; lookup errors fail closed.
func (r *Registry) IsOptedIn(ctx context.Context, phone, tenantID string) bool {
	status, err := r.Status(ctx, phone, tenantID)
	if err != nil {
		r.log.Error("opt-in lookup failed, blocking SMS",
			logger.String("tenant_id", tenantID),
			logger.Error(err))
		return false
	}
	return status == entities.OptInStatusOptedIn
}

// OptIn records consent for a number. source identifies how consent was
// collected (web form, inbound keyword, import).
func (r *Registry) OptIn(ctx context.Context, phone, tenantID, source string) error {
	now := time.Now()
	rec := &entities.OptInRecord{
		PhoneNumber: phone,
		TenantID:    tenantID,
		Status:      entities.OptInStatusOptedIn,
		Source:      source,
		OptedInAt:   &now,
	}
	if err := r.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("recording opt-in: %w", err)
	}
	r.cache.SetDefault(cacheKey(phone, tenantID), entities.OptInStatusOptedIn)
	r.log.Info("phone number opted in",
		logger.String("tenant_id", tenantID),
		logger.String("source", source))
	return nil
}

// OptOut revokes consent for a number.
func (r *Registry) OptOut(ctx context.Context, phone, tenantID, source string) error {
	now := time.Now()
	rec := &entities.OptInRecord{
		PhoneNumber: phone,
		TenantID:    tenantID,
		Status:      entities.OptInStatusOptedOut,
		Source:      source,
		OptedOutAt:  &now,
	}
	if err := r.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("recording opt-out: %w", err)
	}
	r.cache.SetDefault(cacheKey(phone, tenantID), entities.OptInStatusOptedOut)
	r.log.Info("phone number opted out",
		logger.String("tenant_id", tenantID),
		logger.String("source", source))
	return nil
}

// HandleInboundKeyword processes an inbound SMS body from the carrier
// webhook. STOP-class keywords opt the sender out, START-class keywords opt
// them back in, and anything else is acknowledged without a state change.
func (r *Registry) HandleInboundKeyword(ctx context.Context, phone, tenantID, body string) (KeywordResult, error) {
	keyword := strings.ToUpper(strings.TrimSpace(body))

	switch {
	case stopKeywords[keyword]:
		if err := r.OptOut(ctx, phone, tenantID, "sms_keyword"); err != nil {
			return KeywordResult{}, err
		}
		return KeywordResult{Action: KeywordActionOptOut, ResponseText: optOutResponse}, nil
	case startKeywords[keyword]:
		if err := r.OptIn(ctx, phone, tenantID, "sms_keyword"); err != nil {
			return KeywordResult{}, err
		}
		return KeywordResult{Action: KeywordActionOptIn, ResponseText: optInResponse}, nil
	default:
		return KeywordResult{Action: KeywordActionNone}, nil
	}
}
