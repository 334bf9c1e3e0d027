// Package sending delivers rendered campaign steps to recipients.
//
// The campaign scheduler depends only on Transport. A failed Send is
// recorded against the step and never retried.
package sending

import (
	"context"
	"errors"
	"strings"

	"github.com/ignite/crm-automation/internal/pkg/logger"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("sending: recipient address is empty")

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
	IsHTML  bool
	// Tags are attached where the provider supports them (campaign, step,
	// recipient IDs).
	Tags map[string]string
}

// Transport delivers a single message. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport logs messages instead of sending them. Used when no
// provider is configured.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	logger.Info("[sending] dry-run delivery", "email", msg.To, "subject", msg.Subject,
		"bytes", len(msg.Body), "campaign_id", msg.Tags["campaign_id"], "step_id", msg.Tags["step_id"])
	return nil
}
