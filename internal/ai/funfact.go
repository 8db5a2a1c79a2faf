// README: Route fun facts generated by the configured providers, metered per actor.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxFunFactLen = 280

// Quota deducts one generation from the actor's allowance.
type Quota interface {
	UseToken(ctx context.Context, uid string) error
}

type FunFacts struct {
	provider Provider
	quota    Quota
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFunFacts wraps provider. quota may be nil for unmetered use.
func NewFunFacts(provider Provider, quota Quota, timeout time.Duration, logger *zap.Logger) *FunFacts {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &FunFacts{provider: provider, quota: quota, timeout: timeout, logger: logger}
}

func (f *FunFacts) FunFact(ctx context.Context, actor string, countries []string, distanceKm decimal.Decimal) (string, error) {
	if f.provider == nil {
		return "", ErrNoProvider
	}
	if f.quota != nil {
		if err := f.quota.UseToken(ctx, actor); err != nil {
			return "", fmt.Errorf("fun fact quota for %s: %w", actor, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	out, err := f.provider.Generate(ctx, FunFactPrompt(countries, distanceKm))
	if err != nil {
		return "", err
	}
	f.logger.Debug("fun fact generated",
		zap.String("provider", f.provider.Name()),
		zap.Strings("countries", countries),
		zap.Duration("elapsed", time.Since(start)))
	return truncate(out, maxFunFactLen), nil
}

// FunFactPrompt builds the single-sentence request sent to the model.
func FunFactPrompt(countries []string, distanceKm decimal.Decimal) string {
	route := "a European road freight route"
	if len(countries) > 0 {
		route = "a road freight route through " + strings.Join(countries, ", ")
	}
	return fmt.Sprintf(
		"Write one short, light-hearted fun fact (max 40 words, plain text, no markdown) about %s of about %s km. "+
			"Do not mention prices or costs.",
		route, distanceKm.Round(0).String())
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
