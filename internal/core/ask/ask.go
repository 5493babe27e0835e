// Package ask forwards a prompt upstream and threads it through an optional
// session, recording both turns once the reply arrives.
package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neilberkman/gptmcp/internal/core/llm"
	"github.com/neilberkman/gptmcp/internal/core/models"
	"github.com/neilberkman/gptmcp/internal/core/session"
)

// ErrInvalidParams wraps every validation failure
var ErrInvalidParams = errors.New("invalid parameters")

// Params are the caller-supplied inputs of one question
type Params struct {
	Model           string
	Prompt          string
	ReasoningEffort string
	Verbosity       string
	SessionID       string
}

// request is Params after validation
type request struct {
	model     models.ChatModel
	prompt    string
	effort    models.ReasoningEffort
	verbosity models.Verbosity
	sessionID string
}

// Validate checks model, prompt and the optional tuning values
func (p Params) Validate() error {
	_, err := p.parse()
	return err
}

func (p Params) parse() (request, error) {
	model, err := models.ParseChatModel(p.Model)
	if err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return request{}, fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	effort, err := models.ParseReasoningEffort(p.ReasoningEffort)
	if err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	verbosity, err := models.ParseVerbosity(p.Verbosity)
	if err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return request{
		model:     model,
		prompt:    p.Prompt,
		effort:    effort,
		verbosity: verbosity,
		sessionID: p.SessionID,
	}, nil
}

// Result is the outcome of one question
type Result struct {
	Model           models.ChatModel       `json:"model"`
	Response        string                 `json:"response"`
	ReasoningEffort models.ReasoningEffort `json:"reasoning_effort,omitempty"`
	Verbosity       models.Verbosity       `json:"verbosity,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	TokensUsed      int                    `json:"tokens_used,omitempty"`
}

// Service answers questions against a provider, using the store for context
type Service struct {
	store    *session.Store
	provider llm.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new ask service
func NewService(store *session.Store, provider llm.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:    store,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Ask validates params, calls the provider with any session history and
// appends the prompt and reply to the session.
//
// The session is looked up (and marked used) before the upstream call and
// written after it. A session cleared or expired in between surfaces as
// session.ErrSessionNotFound and the reply is dropped.
func (s *Service) Ask(ctx context.Context, params Params) (*Result, error) {
	req, err := params.parse()
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("model", string(req.model)))
	if req.sessionID != "" {
		logger = logger.With(slog.String("session_id", req.sessionID))
	}

	var history []models.Message
	if req.sessionID != "" {
		if _, ok := s.store.Get(req.sessionID); !ok {
			return nil, fmt.Errorf("session %s %w", req.sessionID, session.ErrSessionNotFound)
		}
		history = s.store.History(req.sessionID)
		s.store.SetModelPreference(req.sessionID, req.model)
	}

	logger.Debug("forwarding prompt", slog.Int("history", len(history)))

	start := time.Now()
	completion, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:           req.model,
		Messages:        append(history, models.UserMessage(req.prompt)),
		ReasoningEffort: req.effort,
		Verbosity:       req.verbosity,
	})
	if err != nil {
		logger.Error("upstream call failed",
			slog.String("provider", s.provider.Name()),
			slog.Any("error", err))
		return nil, err
	}

	if req.sessionID != "" {
		if err := s.store.Append(req.sessionID, models.UserMessage(req.prompt), 0); err != nil {
			return nil, err
		}
		if err := s.store.Append(req.sessionID, models.AssistantMessage(completion.Text), completion.TokensUsed); err != nil {
			return nil, err
		}
	}

	logger.Info("prompt answered",
		slog.Int("tokens_used", completion.TokensUsed),
		slog.Duration("duration", time.Since(start)))

	result := &Result{
		Model:      req.model,
		Response:   completion.Text,
		SessionID:  req.sessionID,
		Timestamp:  s.now().UTC(),
		TokensUsed: completion.TokensUsed,
	}
	if req.model.SupportsTuning() {
		result.ReasoningEffort = req.effort
		result.Verbosity = req.verbosity
	}
	return result, nil
}
