package calls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sjawhar/callscribe/internal/resilience"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
)

// Recorder is the write side of the durable archive.
type Recorder interface {
	RecordInteraction(ctx context.Context, customerID int64, kind, summary string) (int64, error)
}

type Journal interface {
	Append(e storage.JournalEntry) error
}

type Events interface {
	CallArchived(callID string, customerID, interactionID int64)
}

// Committer retires a call: the reviewed summary goes to the archive and
// every trace of the call leaves the session store.
type Committer struct {
	sessions *session.Sessions
	recorder Recorder
	retry    resilience.RetryPolicy
	journal  Journal
	events   Events
	logger   *slog.Logger
	now      func() time.Time
}

type CommitterOption func(*Committer)

func WithJournal(j Journal) CommitterOption {
	return func(c *Committer) {
		c.journal = j
	}
}

func WithEvents(e Events) CommitterOption {
	return func(c *Committer) {
		c.events = e
	}
}

func WithRetryPolicy(p resilience.RetryPolicy) CommitterOption {
	return func(c *Committer) {
		c.retry = p
	}
}

func NewCommitter(sessions *session.Sessions, recorder Recorder, logger *slog.Logger, opts ...CommitterOption) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Committer{
		sessions: sessions,
		recorder: recorder,
		retry:    resilience.NewRetryPolicy(3, 100*time.Millisecond),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save records text as a phone-call interaction for customerID and then
// deletes the call's session state in one atomic step. If the interaction
// is recorded but the cleanup keeps failing, the interaction id is returned
// together with the error.
func (c *Committer) Save(ctx context.Context, callID string, customerID int64, text string) (int64, error) {
	id, err := c.recorder.RecordInteraction(ctx, customerID, storage.InteractionPhoneCall, text)
	if err != nil {
		return 0, fmt.Errorf("record interaction: %w", err)
	}

	// The interaction is already archived: the cleanup must finish even if
	// the caller goes away, or the call would be processed again.
	err = c.retry.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return c.sessions.Delete(ctx, callID)
	})
	if err != nil {
		c.logger.Error("session cleanup failed after archiving", "call_id", callID, "interaction_id", id, "error", err)
		return id, fmt.Errorf("clean up call %s: %w", callID, err)
	}

	if c.journal != nil {
		entry := storage.JournalEntry{
			CallID:        callID,
			CustomerID:    customerID,
			InteractionID: id,
			Summary:       text,
			SavedAt:       c.now(),
		}
		if err := c.journal.Append(entry); err != nil {
			c.logger.Warn("journal append failed", "call_id", callID, "error", err)
		}
	}
	if c.events != nil {
		c.events.CallArchived(callID, customerID, id)
	}

	c.logger.Info("call archived", "call_id", callID, "customer_id", customerID, "interaction_id", id)
	return id, nil
}
