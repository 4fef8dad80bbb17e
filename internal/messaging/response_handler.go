package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// DefaultErrorMessage is sent to a user when their message could not be processed.
const DefaultErrorMessage = "⚠️ Sorry, something went wrong while processing your message. Please try again."

// Deduper remembers inbound message IDs across restarts.
type Deduper interface {
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// ResponseAction processes one inbound message from a canonical sender.
type ResponseAction func(ctx context.Context, from, responseText string, timestamp int64) error

// ResponseHandler routes inbound messages to a ResponseAction.
// Messages from one sender are handled strictly in arrival order, one at a time;
// different senders are handled concurrently.
type ResponseHandler struct {
	msgService   Service
	action       ResponseAction
	errorMessage string
	deduper      Deduper

	mu     sync.Mutex
	queues map[string][]models.Response // pending messages per sender; present while a drain runs
	wg     sync.WaitGroup
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithErrorMessage overrides the reply sent when the action fails. Empty disables the reply.
func WithErrorMessage(msg string) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.errorMessage = msg }
}

// WithDeduper drops messages whose transport ID was already seen.
func WithDeduper(d Deduper) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.deduper = d }
}

// NewResponseHandler creates a ResponseHandler dispatching msgService's inbound messages to action.
func NewResponseHandler(msgService Service, action ResponseAction, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService:   msgService,
		action:       action,
		errorMessage: DefaultErrorMessage,
		queues:       make(map[string][]models.Response),
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse queues a message behind any earlier messages from the same sender.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	response.From = from

	if rh.isDuplicate(ctx, response) {
		slog.Info("ResponseHandler dropping redelivered message", "from", from, "messageID", response.ID)
		return nil
	}

	rh.mu.Lock()
	pending, running := rh.queues[from]
	rh.queues[from] = append(pending, response)
	if !running {
		rh.wg.Add(1)
		go rh.drain(ctx, from)
	}
	rh.mu.Unlock()

	slog.Debug("ResponseHandler queued response", "from", from, "queued_behind", len(pending))
	return nil
}

// drain handles from's queue until it is empty, then forgets the sender.
func (rh *ResponseHandler) drain(ctx context.Context, from string) {
	defer rh.wg.Done()
	for {
		rh.mu.Lock()
		queue := rh.queues[from]
		if len(queue) == 0 {
			delete(rh.queues, from)
			rh.mu.Unlock()
			return
		}
		next := queue[0]
		rh.queues[from] = queue[1:]
		rh.mu.Unlock()

		rh.handle(ctx, next)
	}
}

// isDuplicate records the message ID. Storage errors let the message through.
func (rh *ResponseHandler) isDuplicate(ctx context.Context, response models.Response) bool {
	if rh.deduper == nil || response.ID == "" {
		return false
	}
	fresh, err := rh.deduper.RecordInbound(ctx, response.ID, response.From)
	if err != nil {
		slog.Warn("ResponseHandler dedup check failed, processing anyway", "error", err, "messageID", response.ID)
		return false
	}
	return !fresh
}

func (rh *ResponseHandler) handle(ctx context.Context, response models.Response) {
	err := rh.action(ctx, response.From, response.Body, response.Time)
	if err == nil {
		if rh.deduper != nil && response.ID != "" {
			if markErr := rh.deduper.MarkProcessed(ctx, response.ID); markErr != nil {
				slog.Warn("ResponseHandler failed to mark message processed", "error", markErr, "messageID", response.ID)
			}
		}
		return
	}
	slog.Error("ResponseHandler action failed", "error", err, "from", response.From)
	if rh.errorMessage == "" {
		return
	}
	if sendErr := rh.msgService.SendText(ctx, response.From, rh.errorMessage); sendErr != nil {
		slog.Error("ResponseHandler failed to send error message", "error", sendErr, "from", response.From)
	}
}

// Pending returns the number of senders with messages queued or in progress.
func (rh *ResponseHandler) Pending() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return len(rh.queues)
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// Wait blocks until the processing loop has exited and every queued message has been handled.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}
