package core

import (
	"fmt"
	"time"

	"github.com/murshid-ai/murshid/internal/store"
)

// UsageStore persists per-account counters.
type UsageStore interface {
	UsageCounter(accountID int64) (*store.UsageCounter, error)
	SaveUsageCounter(c *store.UsageCounter) error
}

// UsageLimits are the per-calendar-month caps for one deployment tier.
type UsageLimits struct {
	Messages int
	Tokens   int
}

// UsageEnforcer gates turns against monthly limits. Counters reset lazily the
// first time a check observes a new calendar month; there is no background
// job. Consumption is a separate call made only after a successful
// completion, so denied or failed turns are never counted.
type UsageEnforcer struct {
	store  UsageStore
	limits UsageLimits
	now    func() time.Time
}

func NewUsageEnforcer(st UsageStore, limits UsageLimits) *UsageEnforcer {
	return &UsageEnforcer{store: st, limits: limits, now: time.Now}
}

// Check allows or denies the next turn. Denial never mutates counters.
func (e *UsageEnforcer) Check(accountID int64) error {
	counter, err := e.loadCurrent(accountID)
	if err != nil {
		return err
	}
	if e.limits.Messages > 0 && counter.MessagesUsed >= e.limits.Messages {
		return &QuotaError{Reason: "messages", Used: counter.MessagesUsed, Limit: e.limits.Messages}
	}
	if e.limits.Tokens > 0 && counter.TokensUsed >= e.limits.Tokens {
		return &QuotaError{Reason: "tokens", Used: counter.TokensUsed, Limit: e.limits.Tokens}
	}
	return nil
}

// Consume records one answered message and its token cost.
func (e *UsageEnforcer) Consume(accountID int64, tokens int) error {
	counter, err := e.loadCurrent(accountID)
	if err != nil {
		return err
	}
	counter.MessagesUsed++
	counter.TokensUsed += tokens
	if err := e.store.SaveUsageCounter(counter); err != nil {
		return fmt.Errorf("failed to save usage counter: %w", err)
	}
	return nil
}

// Current reports the counter after applying any pending monthly reset, for
// the dashboard usage endpoint.
func (e *UsageEnforcer) Current(accountID int64) (*store.UsageCounter, UsageLimits, error) {
	counter, err := e.loadCurrent(accountID)
	if err != nil {
		return nil, UsageLimits{}, err
	}
	return counter, e.limits, nil
}

// loadCurrent fetches the counter and zeroes it first if its last reset falls
// in an earlier (year, month) than now.
func (e *UsageEnforcer) loadCurrent(accountID int64) (*store.UsageCounter, error) {
	counter, err := e.store.UsageCounter(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage counter: %w", err)
	}
	now := e.now()
	ry, rm, _ := counter.LastReset.Date()
	ny, nm, _ := now.Date()
	if ry != ny || rm != nm {
		counter.MessagesUsed = 0
		counter.TokensUsed = 0
		counter.LastReset = now
		if err := e.store.SaveUsageCounter(counter); err != nil {
			return nil, fmt.Errorf("failed to persist usage reset: %w", err)
		}
	}
	return counter, nil
}

// EstimateTokens approximates token cost as ceil(chars/4) for providers that
// report no usage.
func EstimateTokens(userMsg, assistantMsg string) int {
	return (len(userMsg) + len(assistantMsg) + 3) / 4
}
