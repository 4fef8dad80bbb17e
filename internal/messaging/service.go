// Package messaging delivers HealthMate conversations over pluggable chat transports.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the responses channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted canonical phone number
	MinPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It sends text and choice prompts and provides a channel of inbound messages.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message to a recipient.
	SendText(ctx context.Context, to string, body string) error

	// SendChoicePrompt sends a question together with the answers it accepts.
	SendChoicePrompt(ctx context.Context, to string, body string, options []string) error

	// Start begins any background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the responses channel.
	Stop() error

	// Responses returns a channel of inbound user messages.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips every non-digit and requires at least MinPhoneDigits digits.
// "whatsapp:+1 (555) 123-4567" becomes "15551234567".
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug("CanonicalizePhone modified recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// FormatChoicePrompt renders a choice prompt as text for transports without reply keyboards.
func FormatChoicePrompt(body string, options []string) string {
	if len(options) == 0 {
		return body
	}
	return body + "\n\n👉 Reply with: " + strings.Join(options, " / ")
}

// emitResponse pushes r onto ch, dropping it if the channel stays full for DefaultChannelTimeout.
func emitResponse(ch chan<- models.Response, r models.Response, service string) {
	select {
	case ch <- r:
		slog.Debug(service+" inbound message forwarded", "from", r.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(service+" responses channel blocked, dropping message", "from", r.From, "timeout", DefaultChannelTimeout)
	}
}
