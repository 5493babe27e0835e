// Package session keeps multi-turn conversation state in memory.
//
// A Store owns every session. Sessions are bounded two ways: by message
// count (oldest non-system messages are trimmed) and by token budget (the
// whole non-system history is dropped once the budget is exceeded). Idle
// sessions are expired lazily whenever a session is created or listed.
package session

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neilberkman/gptmcp/internal/core/models"
)

const (
	DefaultMaxTokens   = 100000
	DefaultMaxMessages = 100
	DefaultExpiry      = 24 * time.Hour
)

var (
	// ErrSessionNotFound is returned when an id matches no live session.
	// Expired, cleared and never-created ids are indistinguishable.
	ErrSessionNotFound = errors.New("not found")

	// ErrInvalidState is returned for appends that would break a session
	// invariant, such as a second system message.
	ErrInvalidState = errors.New("invalid session state")
)

// Limits bounds the size and lifetime of every session in a store
type Limits struct {
	MaxTokens   int
	MaxMessages int
	Expiry      time.Duration
}

// DefaultLimits returns the built-in session limits
func DefaultLimits() Limits {
	return Limits{
		MaxTokens:   DefaultMaxTokens,
		MaxMessages: DefaultMaxMessages,
		Expiry:      DefaultExpiry,
	}
}

// withDefaults replaces non-positive fields with the defaults
func (l Limits) withDefaults() Limits {
	if l.MaxTokens <= 0 {
		l.MaxTokens = DefaultMaxTokens
	}
	if l.MaxMessages <= 0 {
		l.MaxMessages = DefaultMaxMessages
	}
	if l.Expiry <= 0 {
		l.Expiry = DefaultExpiry
	}
	return l
}

// Metadata carries per-session accounting
type Metadata struct {
	TotalTokens     int
	MessageCount    int
	ModelPreference models.ChatModel
}

// Session is one conversation. Values handed out by the Store are copies.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
	Messages  []models.Message
	Metadata  Metadata
}

// Summary is the administrative view of a session
type Summary struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	LastUsed        time.Time        `json:"last_used"`
	MessageCount    int              `json:"message_count"`
	TotalTokens     int              `json:"total_tokens"`
	ModelPreference models.ChatModel `json:"model_preference,omitempty"`
}

func (s *Session) clone() Session {
	c := *s
	c.Messages = append([]models.Message{}, s.Messages...)
	return c
}

func (s *Session) summary() Summary {
	return Summary{
		ID:              s.ID,
		CreatedAt:       s.CreatedAt,
		LastUsed:        s.LastUsed,
		MessageCount:    s.Metadata.MessageCount,
		TotalTokens:     s.Metadata.TotalTokens,
		ModelPreference: s.Metadata.ModelPreference,
	}
}

func (s *Session) hasSystem() bool {
	return len(s.Messages) > 0 && s.Messages[0].Role == models.RoleSystem
}

// Store is a concurrency-safe in-memory session registry. A single mutex
// serializes every operation, including the expiry sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	limits   Limits
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLimits overrides the default limits. Non-positive fields keep their default.
func WithLimits(l Limits) Option {
	return func(s *Store) { s.limits = l.withDefaults() }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for prune, reset and expiry events
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		limits:   DefaultLimits(),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the limits the store enforces
func (s *Store) Limits() Limits {
	return s.limits
}

// Create starts a new session, seeded with systemPrompt when it is non-empty,
// and returns its id. Idle sessions are expired before returning.
func (s *Store) Create(systemPrompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		ID:        s.newID(),
		CreatedAt: now,
		LastUsed:  now,
		Messages:  []models.Message{},
	}
	if systemPrompt != "" {
		sess.Messages = append(sess.Messages, models.SystemMessage(systemPrompt))
	}
	sess.Metadata.MessageCount = len(sess.Messages)
	s.sessions[sess.ID] = sess

	s.expireLocked(now)
	return sess.ID
}

// Get returns a copy of the session and marks it as used.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	sess.LastUsed = s.now()
	return sess.clone(), true
}

// Append adds msg to the end of the session and charges tokensUsed against
// its budget.
//
// Size pruning runs first: past MaxMessages the oldest non-system messages
// are dropped. The budget check runs second: past MaxTokens every
// non-system message is dropped and the token count restarts at zero.
func (s *Store) Append(id string, msg models.Message, tokensUsed int) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if tokensUsed < 0 {
		return fmt.Errorf("%w: negative token count %d", ErrInvalidState, tokensUsed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s %w", id, ErrSessionNotFound)
	}

	if msg.Role == models.RoleSystem {
		if sess.hasSystem() {
			return fmt.Errorf("%w: session %s already has a system message", ErrInvalidState, id)
		}
		sess.Messages = append([]models.Message{msg}, sess.Messages...)
	} else {
		sess.Messages = append(sess.Messages, msg)
	}
	sess.Metadata.TotalTokens += tokensUsed
	sess.LastUsed = s.now()

	if len(sess.Messages) > s.limits.MaxMessages {
		before := len(sess.Messages)
		sess.Messages = trimToTail(sess.Messages, s.limits.MaxMessages)
		s.logger.Debug("pruned session history",
			slog.String("session_id", id),
			slog.Int("dropped", before-len(sess.Messages)))
	}

	if sess.Metadata.TotalTokens > s.limits.MaxTokens {
		s.logger.Debug("session token budget exceeded, resetting history",
			slog.String("session_id", id),
			slog.Int("total_tokens", sess.Metadata.TotalTokens),
			slog.Int("max_tokens", s.limits.MaxTokens))
		if sess.hasSystem() {
			sess.Messages = []models.Message{sess.Messages[0]}
		} else {
			sess.Messages = []models.Message{}
		}
		sess.Metadata.TotalTokens = 0
	}

	sess.Metadata.MessageCount = len(sess.Messages)
	return nil
}

// trimToTail keeps the newest max messages, pinning a leading system message.
// The result never aliases msgs so the dropped prefix can be collected.
func trimToTail(msgs []models.Message, max int) []models.Message {
	if len(msgs) <= max {
		return msgs
	}
	out := make([]models.Message, 0, max)
	if msgs[0].Role == models.RoleSystem {
		out = append(out, msgs[0])
		return append(out, msgs[len(msgs)-(max-1):]...)
	}
	return append(out, msgs[len(msgs)-max:]...)
}

// Clear removes the session and reports whether it existed
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// List expires idle sessions and summarizes the rest, oldest first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now())

	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, sess.summary())
	}
	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return summaries
}

// Info summarizes one session without marking it as used
func (s *Store) Info(id string) (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Summary{}, false
	}
	return sess.summary(), true
}

// History returns a copy of the conversation, or nil if the session is unknown
func (s *Store) History(id string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]models.Message{}, sess.Messages...)
}

// SetModelPreference records the model last used in the session
func (s *Store) SetModelPreference(id string, model models.ChatModel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Metadata.ModelPreference = model
	return true
}

// Len returns the number of sessions held, including idle ones not yet swept
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// expireLocked removes sessions idle for longer than the expiry window.
// Caller must hold s.mu.
func (s *Store) expireLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastUsed) > s.limits.Expiry {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired idle sessions",
			slog.Int("removed", removed),
			slog.Int("remaining", len(s.sessions)))
	}
	return removed
}
