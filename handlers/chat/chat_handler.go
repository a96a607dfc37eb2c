package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"voicechat/core"
	"voicechat/events/chat"
	"voicechat/handlers/transcript"
)

// ChatService produces one assistant reply for a request.
type ChatService interface {
	core.IService
	Complete(ctx context.Context, req core.ChatRequest) (string, error)
}

// CredentialSource is the part of the credential gate the chat handler needs.
type CredentialSource interface {
	IsReady() bool
	Value() string
}

// ChatHandler runs the send → reply lifecycle over a transcript. At most one
// request is current; a newer Send supersedes it and its result is discarded.
type ChatHandler struct {
	*core.BaseHandler[ChatService]
	gate       CredentialSource
	transcript *transcript.Store
	config     ChatConfig
	notifier   core.Notifier
	Logger     *core.Logger

	mu         sync.Mutex
	inFlightID string
	cancel     context.CancelCauseFunc
	lastError  error
}

// NewChatHandler creates a new chat handler.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewChatHandler(service ChatService, gate CredentialSource, store *transcript.Store, config ChatConfig, logger *core.Logger) *ChatHandler {
	if logger == nil {
		logger = core.GetLogger()
	}
	if store == nil {
		store = transcript.NewStore()
	}
	return &ChatHandler{
		BaseHandler: core.NewBaseHandler(service, nil),
		gate:        gate,
		transcript:  store,
		config:      config,
		notifier:    core.NopNotifier{},
		Logger:      logger.With(map[string]any{"component": "chat"}),
	}
}

// WithBackupService registers a fallback service used when the current one
// fails at the transport level. Returns the handler to allow chaining.
func (h *ChatHandler) WithBackupService(service ChatService) *ChatHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

// WithNotifier sets where chat events are delivered.
func (h *ChatHandler) WithNotifier(n core.Notifier) *ChatHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

// Send submits userText and blocks until its reply is integrated or abandoned.
// A send that is superseded by a newer one returns core.ErrSuperseded and
// leaves no trace beyond its user message and failed placeholder.
func (h *ChatHandler) Send(ctx context.Context, userText string) (core.Message, error) {
	if !h.gate.IsReady() {
		return core.Message{}, fmt.Errorf("chat: send: %w", core.ErrNotReady)
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return core.Message{}, fmt.Errorf("chat: send: %w", core.ErrEmptyInput)
	}

	h.mu.Lock()
	h.cancelLocked(core.ErrSuperseded)
	if p, ok := h.transcript.Pending(); ok {
		// The request that owned it is gone; close it out so the new turn can start.
		h.transcript.UpdatePending(p.ID, p.Content, core.MessageStatusFailed)
	}

	history := h.history()
	user := core.NewUserMessage(userText)
	placeholder := core.NewPendingAssistantMessage()
	if err := h.transcript.Append(user); err != nil {
		h.mu.Unlock()
		return core.Message{}, fmt.Errorf("chat: send: %w", err)
	}
	if err := h.transcript.Append(placeholder); err != nil {
		h.mu.Unlock()
		return core.Message{}, fmt.Errorf("chat: send: %w", err)
	}

	requestID := uuid.New().String()
	causeCtx, cancel := context.WithCancelCause(ctx)
	reqCtx, stopTimer := context.WithTimeout(causeCtx, h.config.requestTimeout())
	defer stopTimer()
	h.inFlightID = requestID
	h.cancel = cancel
	h.mu.Unlock()

	h.Logger.With(map[string]any{"request_id": requestID, "history": len(history)}).Debug("chat request started")
	h.notifier.Notify(&chat.ChatRequestStartedEvent{RequestID: requestID, MessageID: placeholder.ID})

	service := h.Service()
	reply, err := service.Complete(reqCtx, core.ChatRequest{
		RequestID:  requestID,
		History:    history,
		UserText:   userText,
		Credential: h.gate.Value(),
	})

	return h.finish(requestID, placeholder.ID, service, causeCtx, reply, err)
}

// finish integrates the outcome of request requestID into the transcript.
func (h *ChatHandler) finish(requestID, messageID string, service ChatService, causeCtx context.Context, reply string, err error) (core.Message, error) {
	h.mu.Lock()
	if h.inFlightID != requestID {
		// Superseded or cancelled; whatever came back is stale.
		if p, ok := h.transcript.Pending(); ok && p.ID == messageID {
			h.transcript.UpdatePending(messageID, "", core.MessageStatusFailed)
		}
		h.mu.Unlock()

		cause := context.Cause(causeCtx)
		if cause == nil {
			cause = core.ErrCancelled
		}
		h.Logger.With(map[string]any{"request_id": requestID, "reason": cause}).Debug("chat response discarded")
		return core.Message{}, fmt.Errorf("chat: request %s: %w", requestID, cause)
	}
	h.cancel(nil)
	h.inFlightID = ""
	h.cancel = nil

	if err == nil {
		uerr := h.transcript.UpdatePending(messageID, reply, core.MessageStatusComplete)
		if uerr == nil {
			h.lastError = nil
		}
		msg, _ := h.transcript.Get(messageID)
		h.mu.Unlock()

		if uerr != nil {
			return core.Message{}, fmt.Errorf("chat: integrate reply: %w", uerr)
		}
		h.notifier.Notify(&chat.ChatResponseCompletedEvent{MessageID: messageID, FullText: reply})
		return msg, nil
	}

	err = classify(err)
	h.transcript.UpdatePending(messageID, "", core.MessageStatusFailed)
	if errors.Is(err, context.Canceled) {
		// The caller gave up on its own request; nothing newer replaced it.
		h.mu.Unlock()
		return core.Message{}, fmt.Errorf("chat: request %s: %w", requestID, core.ErrCancelled)
	}
	h.lastError = err
	h.mu.Unlock()

	h.Logger.With(map[string]any{"request_id": requestID, "error": err}).Warn("chat request failed")
	h.notifier.Notify(&chat.ChatResponseFailedEvent{MessageID: messageID, Error: err.Error()})
	if errors.Is(err, core.ErrServiceError) {
		if serr := h.SwitchToBackupService(service); serr != nil && !errors.Is(serr, core.ErrNoBackupService) {
			h.Logger.With(map[string]any{"error": serr}).Error("chat backup service failed to start")
		}
	}
	return core.Message{}, fmt.Errorf("chat: request %s: %w", requestID, err)
}

// history builds the context window: the system prompt followed by the most
// recent completed turns.
func (h *ChatHandler) history() []core.ChatTurn {
	turns := h.transcript.History(h.config.HistoryWindow)
	if h.config.SystemPrompt == "" {
		return turns
	}
	return append([]core.ChatTurn{{Role: core.MessageRoleSystem, Content: h.config.SystemPrompt}}, turns...)
}

// classify makes sure err carries exactly one of the remote-failure sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, core.ErrUnauthorized),
		errors.Is(err, core.ErrRateLimited),
		errors.Is(err, core.ErrServiceError),
		errors.Is(err, core.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrServiceError, err)
	}
}

// CancelInFlight abandons the current request without touching the transcript.
// The abandoned Send resolves its own placeholder when it returns.
func (h *ChatHandler) CancelInFlight() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked(core.ErrCancelled)
}

func (h *ChatHandler) cancelLocked(cause error) {
	if h.cancel != nil {
		h.cancel(cause)
	}
	h.inFlightID = ""
	h.cancel = nil
}

// Reset cancels any request in flight and starts an empty conversation.
func (h *ChatHandler) Reset() error {
	h.mu.Lock()
	h.cancelLocked(core.ErrCancelled)
	h.transcript.Reset()
	h.lastError = nil
	h.mu.Unlock()

	h.notifier.Notify(&chat.ChatResetEvent{})
	return h.BaseHandler.Reset()
}

// LastError is the most recent failure of a current request, cleared by the next success.
func (h *ChatHandler) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// InFlightRequestID returns the id of the current request, or "" when idle.
func (h *ChatHandler) InFlightRequestID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inFlightID
}

func (h *ChatHandler) Transcript() *transcript.Store {
	return h.transcript
}
