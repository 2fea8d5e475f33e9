// Package notify delivers arbitrage alerts to chat channels. Every alert goes
// to every configured Sender; one failing channel does not block the rest.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Opportunity is a strategy that crossed the alert threshold.
type Opportunity struct {
	Strategy    string
	Description string
	Source      string
	Percentage  float64
}

// Notifier fans alerts out to its senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. With no senders every call is a no-op.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// AlertOpportunities sends one message listing every opportunity of a pass.
func (n *Notifier) AlertOpportunities(ctx context.Context, runID string, threshold float64, opps []Opportunity) error {
	if !n.Enabled() || len(opps) == 0 {
		return nil
	}
	title := fmt.Sprintf("%d arbitrage opportunit%s ≥ %.2f%%", len(opps), plural(len(opps)), threshold)
	return n.dispatch(ctx, title, FormatOpportunities(runID, opps))
}

// FormatOpportunities renders the alert body.
func FormatOpportunities(runID string, opps []Opportunity) string {
	var b strings.Builder
	for _, o := range opps {
		fmt.Fprintf(&b, "• %s [%s]: %.2f%%\n", o.Strategy, o.Source, o.Percentage)
		if o.Description != "" {
			fmt.Fprintf(&b, "  %s\n", o.Description)
		}
	}
	fmt.Fprintf(&b, "run %s", runID)
	return b.String()
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
