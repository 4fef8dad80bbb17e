package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/BTreeMap/HealthMate/internal/twiliowhatsapp"
)

// TwiMLEmptyResponse acknowledges a webhook without replying inline.
const TwiMLEmptyResponse = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service on top of the Twilio Messaging API.
// Inbound messages arrive through HandleWebhook.
type TwilioService struct {
	client    twiliowhatsapp.Sender
	responses chan models.Response
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start is a no-op; inbound traffic is pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the responses channel. It is safe to call twice.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.responses)
	slog.Info("TwilioService stopped")
	return nil
}

// SendText sends a message via Twilio.
func (s *TwilioService) SendText(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendChoicePrompt sends the prompt with its options listed in the text.
func (s *TwilioService) SendChoicePrompt(ctx context.Context, to string, body string, options []string) error {
	return s.SendText(ctx, to, FormatChoicePrompt(body, options))
}

// Responses returns the channel of inbound messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// Receive canonicalizes the sender and queues an inbound message. id is the Twilio MessageSid.
func (s *TwilioService) Receive(id, from, body string) error {
	canonicalFrom, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	response := models.Response{ID: id, From: canonicalFrom, Body: body, Time: time.Now().Unix()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", canonicalFrom)
		return ErrServiceStopped
	}
	emitResponse(s.responses, response, "TwilioService")
	return nil
}

// HandleWebhook handles inbound Twilio webhook requests.
// Signature verification is the caller's concern; the form must already be parseable.
func (s *TwilioService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" {
		slog.Warn("Twilio webhook missing sender")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if body == "" {
		slog.Debug("Twilio webhook without text body ignored", "from", from, "media", r.PostFormValue("NumMedia"))
		writeTwiML(w)
		return
	}

	if err := s.Receive(r.PostFormValue("MessageSid"), from, body); err != nil {
		slog.Warn("Twilio webhook message rejected", "from", from, "error", err)
		if errors.Is(err, ErrServiceStopped) {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}
	writeTwiML(w)
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, TwiMLEmptyResponse)
}
