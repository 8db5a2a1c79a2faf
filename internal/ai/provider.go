// README: Text-generation providers (Gemini, ChatGPT) behind one interface, tried in order.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoProvider = errors.New("no ai provider configured")

// Provider turns a prompt into a short text reply.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chain tries each provider in order and returns the first non-empty reply.
type Chain []Provider

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, p := range c {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

func (c Chain) Generate(ctx context.Context, prompt string) (string, error) {
	if len(c) == 0 {
		return "", ErrNoProvider
	}
	var errs []error
	for _, p := range c {
		out, err := p.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		if err == nil {
			err = errors.New("empty reply")
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
