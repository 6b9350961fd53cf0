package services

import (
	"context"
	"log/slog"
)

// Notifier delivers account emails. Delivery itself is out of scope here;
// deployments plug in their mailer.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendVerification(ctx context.Context, email, token string) error
}

// LogNotifier writes notifications to the log. Tokens are only included
// when RevealTokens is set, which main does outside production.
type LogNotifier struct {
	RevealTokens bool
}

func (n LogNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.log("password reset requested", email, token)
	return nil
}

func (n LogNotifier) SendVerification(_ context.Context, email, token string) error {
	n.log("email verification requested", email, token)
	return nil
}

func (n LogNotifier) log(msg, email, token string) {
	attrs := []any{"email", email}
	if n.RevealTokens {
		attrs = append(attrs, "token", token)
	}
	slog.Info(msg, attrs...)
}
