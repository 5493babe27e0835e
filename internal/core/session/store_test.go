package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neilberkman/gptmcp/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func listIDs(s *Store) []string {
	var ids []string
	for _, sum := range s.List() {
		ids = append(ids, sum.ID)
	}
	return ids
}

func TestCreate(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	id := store.Create("")
	require.NotEmpty(t, id)

	sess, ok := store.Get(id)
	require.True(t, ok)
	assert.Empty(t, sess.Messages)
	assert.Equal(t, 0, sess.Metadata.MessageCount)
	assert.Equal(t, clock.Now(), sess.CreatedAt)
	assert.Equal(t, clock.Now(), sess.LastUsed)

	withPrompt := store.Create("P")
	sess, ok = store.Get(withPrompt)
	require.True(t, ok)
	assert.Equal(t, []models.Message{models.SystemMessage("P")}, sess.Messages)
	assert.Equal(t, 1, sess.Metadata.MessageCount)

	assert.NotEqual(t, id, withPrompt)
}

func TestBasicRoundTrip(t *testing.T) {
	store := NewStore()
	id := store.Create("")

	require.NoError(t, store.Append(id, models.UserMessage("hi"), 5))

	sess, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, sess.Messages)
	assert.Equal(t, 5, sess.Metadata.TotalTokens)
	assert.Equal(t, 1, sess.Metadata.MessageCount)
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore()
	id := store.Create("P")
	require.NoError(t, store.Append(id, models.UserMessage("hi"), 0))

	sess, _ := store.Get(id)
	sess.Messages[1].Content = "changed"
	sess.Messages = append(sess.Messages, models.UserMessage("extra"))

	again, _ := store.Get(id)
	assert.Equal(t, "hi", again.Messages[1].Content)
	assert.Len(t, again.Messages, 2)

	history := store.History(id)
	history[0].Content = "changed"
	assert.Equal(t, "P", store.History(id)[0].Content)
}

func TestGetTouchesLastUsedButInfoDoesNot(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))
	id := store.Create("")
	created := clock.Now()

	clock.Advance(time.Hour)
	info, ok := store.Info(id)
	require.True(t, ok)
	assert.Equal(t, created, info.LastUsed)

	clock.Advance(time.Hour)
	sess, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, created.Add(2*time.Hour), sess.LastUsed)

	info, _ = store.Info(id)
	assert.Equal(t, created.Add(2*time.Hour), info.LastUsed)
}

func TestGetAndInfoUnknown(t *testing.T) {
	store := NewStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)

	_, ok = store.Info("missing")
	assert.False(t, ok)

	assert.Nil(t, store.History("missing"))
	assert.False(t, store.SetModelPreference("missing", models.ModelGPT5))
}

func TestAppendUnknownSession(t *testing.T) {
	store := NewStore()

	err := store.Append("missing", models.UserMessage("hi"), 0)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, "session missing not found", err.Error())
}

func TestAppendRejectsInvalidState(t *testing.T) {
	store := NewStore()
	id := store.Create("P")

	tests := []struct {
		name   string
		msg    models.Message
		tokens int
	}{
		{name: "duplicate system", msg: models.SystemMessage("again"), tokens: 0},
		{name: "unknown role", msg: models.Message{Role: "tool", Content: "x"}, tokens: 0},
		{name: "negative tokens", msg: models.UserMessage("x"), tokens: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Append(id, tt.msg, tt.tokens)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}

	sess, _ := store.Get(id)
	assert.Equal(t, []models.Message{models.SystemMessage("P")}, sess.Messages)
	assert.Equal(t, 0, sess.Metadata.TotalTokens)
}

func TestAppendSystemToSessionWithoutOne(t *testing.T) {
	store := NewStore()
	id := store.Create("")
	require.NoError(t, store.Append(id, models.UserMessage("hi"), 0))
	require.NoError(t, store.Append(id, models.SystemMessage("P"), 0))

	sess, _ := store.Get(id)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, models.SystemMessage("P"), sess.Messages[0])
	assert.Equal(t, models.UserMessage("hi"), sess.Messages[1])
}

func TestSystemPinnedUnderSizePruning(t *testing.T) {
	store := NewStore()
	id := store.Create("P")

	for i := 0; i < 150; i++ {
		msg := models.UserMessage(fmt.Sprintf("u%d", i))
		if i%2 == 1 {
			msg = models.AssistantMessage(fmt.Sprintf("a%d", i))
		}
		require.NoError(t, store.Append(id, msg, 0))

		sess, _ := store.Get(id)
		require.LessOrEqual(t, len(sess.Messages), DefaultMaxMessages)
		require.Equal(t, models.SystemMessage("P"), sess.Messages[0])
		require.Equal(t, len(sess.Messages), sess.Metadata.MessageCount)
	}

	sess, _ := store.Get(id)
	require.Len(t, sess.Messages, 100)
	assert.Equal(t, models.SystemMessage("P"), sess.Messages[0])
	// 99 most recent of 150 appends: indices 51..149
	assert.Equal(t, "a51", sess.Messages[1].Content)
	assert.Equal(t, "a149", sess.Messages[99].Content)
}

func TestSizePruningWithoutSystem(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxMessages: 3}))
	id := store.Create("")

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(id, models.UserMessage(fmt.Sprint(i)), 0))
	}

	sess, _ := store.Get(id)
	assert.Equal(t, []models.Message{
		models.UserMessage("2"),
		models.UserMessage("3"),
		models.UserMessage("4"),
	}, sess.Messages)
	assert.Equal(t, 3, sess.Metadata.MessageCount)
}

func TestSizePruningKeepsTokenCount(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxMessages: 2}))
	id := store.Create("")

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(id, models.UserMessage("x"), 10))
	}

	info, _ := store.Info(id)
	assert.Equal(t, 2, info.MessageCount)
	assert.Equal(t, 40, info.TotalTokens)
}

func TestTokenResetPreservesSystemPrompt(t *testing.T) {
	store := NewStore()
	id := store.Create("P")

	require.NoError(t, store.Append(id, models.UserMessage("big"), 200000))

	sess, _ := store.Get(id)
	assert.Equal(t, []models.Message{models.SystemMessage("P")}, sess.Messages)
	assert.Equal(t, 0, sess.Metadata.TotalTokens)
	assert.Equal(t, 1, sess.Metadata.MessageCount)
}

func TestTokenResetWithoutSystemPrompt(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxTokens: 100}))
	id := store.Create("")

	require.NoError(t, store.Append(id, models.UserMessage("q"), 0))
	require.NoError(t, store.Append(id, models.AssistantMessage("a"), 60))
	require.NoError(t, store.Append(id, models.UserMessage("q2"), 0))

	info, _ := store.Info(id)
	assert.Equal(t, 60, info.TotalTokens)
	assert.Equal(t, 3, info.MessageCount)

	require.NoError(t, store.Append(id, models.AssistantMessage("a2"), 41))

	sess, _ := store.Get(id)
	assert.Empty(t, sess.Messages)
	assert.NotNil(t, sess.Messages)
	assert.Equal(t, 0, sess.Metadata.TotalTokens)
	assert.Equal(t, 0, sess.Metadata.MessageCount)
}

func TestTokenBudgetExactlyAtLimitDoesNotReset(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxTokens: 100}))
	id := store.Create("")

	require.NoError(t, store.Append(id, models.UserMessage("q"), 100))

	info, _ := store.Info(id)
	assert.Equal(t, 100, info.TotalTokens)
	assert.Equal(t, 1, info.MessageCount)
}

func TestPruneThenResetInSameAppend(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxMessages: 3, MaxTokens: 50}))
	id := store.Create("P")

	require.NoError(t, store.Append(id, models.UserMessage("1"), 0))
	require.NoError(t, store.Append(id, models.AssistantMessage("2"), 0))
	// This append both overflows the message limit and the budget.
	require.NoError(t, store.Append(id, models.UserMessage("3"), 51))

	sess, _ := store.Get(id)
	assert.Equal(t, []models.Message{models.SystemMessage("P")}, sess.Messages)
	assert.Equal(t, 0, sess.Metadata.TotalTokens)
	assert.Equal(t, 1, sess.Metadata.MessageCount)
}

func TestAppendInvariantsHoldForMixedSequences(t *testing.T) {
	limits := Limits{MaxMessages: 7, MaxTokens: 500}
	store := NewStore(WithLimits(limits))

	for _, prompt := range []string{"", "P"} {
		id := store.Create(prompt)
		for i := 0; i < 200; i++ {
			tokens := (i * 37) % 90
			var msg models.Message
			if i%2 == 0 {
				msg = models.UserMessage(fmt.Sprint(i))
			} else {
				msg = models.AssistantMessage(fmt.Sprint(i))
			}
			require.NoError(t, store.Append(id, msg, tokens))

			sess, ok := store.Get(id)
			require.True(t, ok)
			require.LessOrEqual(t, len(sess.Messages), limits.MaxMessages)
			require.LessOrEqual(t, sess.Metadata.TotalTokens, limits.MaxTokens)
			require.Equal(t, len(sess.Messages), sess.Metadata.MessageCount)
			if prompt != "" {
				require.Equal(t, models.SystemMessage(prompt), sess.Messages[0])
			}
			for j, m := range sess.Messages {
				if j > 0 || prompt == "" {
					require.NotEqual(t, models.RoleSystem, m.Role)
				}
			}
		}
	}
}

func TestClearIdempotent(t *testing.T) {
	store := NewStore()
	id := store.Create("")

	assert.True(t, store.Clear(id))
	assert.False(t, store.Clear(id))
	assert.False(t, store.Clear(id))
	assert.False(t, store.Clear("never-existed"))
	assert.False(t, store.Clear("never-existed"))

	_, ok := store.Get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, store.Append(id, models.UserMessage("hi"), 0), ErrSessionNotFound)
}

func TestListSummaries(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	first := store.Create("P")
	clock.Advance(time.Minute)
	second := store.Create("")
	require.NoError(t, store.Append(second, models.UserMessage("hi"), 12))
	require.True(t, store.SetModelPreference(second, models.ModelGPT5Mini))

	summaries := store.List()
	require.Len(t, summaries, 2)

	assert.Equal(t, first, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Empty(t, summaries[0].ModelPreference)

	assert.Equal(t, second, summaries[1].ID)
	assert.Equal(t, 1, summaries[1].MessageCount)
	assert.Equal(t, 12, summaries[1].TotalTokens)
	assert.Equal(t, models.ModelGPT5Mini, summaries[1].ModelPreference)
}

func TestListIdempotentWithoutTimeAdvance(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	store.Create("")
	clock.Advance(23 * time.Hour)
	store.Create("")
	store.Create("P")

	assert.Equal(t, listIDs(store), listIDs(store))
	assert.Len(t, listIDs(store), 3)
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	id := store.Create("")
	clock.Advance(25 * time.Hour)

	assert.NotContains(t, listIDs(store), id)
	_, ok := store.Get(id)
	assert.False(t, ok)
}

func TestExpiryIsLazy(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	id := store.Create("")
	clock.Advance(25 * time.Hour)

	// Neither Info nor Append sweep, so the idle session is still reachable.
	_, ok := store.Info(id)
	assert.True(t, ok)
	require.NoError(t, store.Append(id, models.UserMessage("still here"), 0))

	// The append refreshed LastUsed, so the next sweep keeps it.
	assert.Contains(t, listIDs(store), id)
}

func TestExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now), WithLimits(Limits{Expiry: time.Hour}))

	id := store.Create("")
	clock.Advance(time.Hour)
	assert.Contains(t, listIDs(store), id, "exactly at the window is not expired")

	clock.Advance(time.Nanosecond)
	assert.NotContains(t, listIDs(store), id)
}

func TestCreateSweepsUnrelatedSessions(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	stale := store.Create("")
	clock.Advance(12 * time.Hour)
	fresh := store.Create("")
	clock.Advance(13 * time.Hour)

	assert.Equal(t, 2, store.Len())
	newest := store.Create("")
	assert.Equal(t, 2, store.Len())

	_, ok := store.Info(stale)
	assert.False(t, ok)
	_, ok = store.Info(fresh)
	assert.True(t, ok)
	_, ok = store.Info(newest)
	assert.True(t, ok)
}

func TestWithLimitsFallsBackToDefaults(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxMessages: 10}))
	limits := store.Limits()

	assert.Equal(t, 10, limits.MaxMessages)
	assert.Equal(t, DefaultMaxTokens, limits.MaxTokens)
	assert.Equal(t, DefaultExpiry, limits.Expiry)
}

func TestConcurrentAppends(t *testing.T) {
	store := NewStore(WithLimits(Limits{MaxMessages: 20, MaxTokens: 1000}))
	id := store.Create("P")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = store.Append(id, models.UserMessage(fmt.Sprintf("%d-%d", w, i)), 7)
				store.Get(id)
				store.List()
				store.Create("")
			}
		}(w)
	}
	wg.Wait()

	sess, ok := store.Get(id)
	require.True(t, ok)
	assert.LessOrEqual(t, len(sess.Messages), 20)
	assert.LessOrEqual(t, sess.Metadata.TotalTokens, 1000)
	assert.Equal(t, len(sess.Messages), sess.Metadata.MessageCount)
	assert.Equal(t, models.SystemMessage("P"), sess.Messages[0])
	// 800 appends at 7 tokens each, reset every time the total passes 1000
	assert.Equal(t, (800*7)%1001, sess.Metadata.TotalTokens)
}
