package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
	"github.com/nufaill/fluffyCare-sub004/internal/repositories"
)

// RetryPolicy bounds the in-request retries of a chat summary sync.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// syncTask is the chat summary work left over after a message was stored.
// The two steps are tracked separately so a retry never double counts.
type syncTask struct {
	ChatID      string
	Preview     string
	Type        models.MessageType
	At          time.Time
	Recipient   models.Role
	previewDone bool
	unreadDone  bool
}

func (s *Service) syncOnce(ctx context.Context, task *syncTask) (models.Chat, error) {
	var chat models.Chat
	var err error
	if !task.previewDone {
		chat, err = s.chats.UpdateLastMessage(ctx, task.ChatID, task.Preview, task.Type, task.At)
		if err != nil {
			observability.IncSummarySyncRetry("last_message")
			return models.Chat{}, err
		}
		task.previewDone = true
	}
	if !task.unreadDone {
		chat, err = s.chats.IncrementUnread(ctx, task.ChatID, task.Recipient)
		if err != nil {
			observability.IncSummarySyncRetry("unread")
			return models.Chat{}, err
		}
		task.unreadDone = true
	}
	return chat, nil
}

func (s *Service) syncWithRetry(ctx context.Context, task *syncTask) (models.Chat, error) {
	var chat models.Chat
	op := func() error {
		var err error
		chat, err = s.syncOnce(ctx, task)
		if errors.Is(err, repositories.ErrChatNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, s.retry.backOff(ctx)); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

type resyncQueue struct {
	mu    sync.Mutex
	tasks []*syncTask
}

func (q *resyncQueue) push(task *syncTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	n := len(q.tasks)
	q.mu.Unlock()
	observability.SetSummarySyncPending(n)
}

func (q *resyncQueue) drain() []*syncTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

func (q *resyncQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// PendingSyncs reports how many chat summaries are waiting for the worker.
func (s *Service) PendingSyncs() int {
	return s.resync.size()
}

// RunResyncWorker retries deferred summary syncs every interval until ctx is done.
func (s *Service) RunResyncWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := s.resync.size(); n > 0 {
				logger.Error("resync worker stopping with %d chat summaries unsynced", n)
			}
			return
		case <-ticker.C:
			s.ResyncPending(ctx)
		}
	}
}

// ResyncPending makes one pass over the deferred syncs. Tasks that still fail
// go back on the queue; tasks whose chat is gone are dropped.
func (s *Service) ResyncPending(ctx context.Context) int {
	tasks := s.resync.drain()
	synced := 0
	for _, task := range tasks {
		_, err := s.syncOnce(ctx, task)
		switch {
		case err == nil:
			synced++
		case errors.Is(err, repositories.ErrChatNotFound):
			logger.Warn("dropping summary sync for deleted chat %s", task.ChatID)
		default:
			s.resync.push(task)
		}
	}
	observability.SetSummarySyncPending(s.resync.size())
	if synced > 0 {
		logger.Info("resynced %d chat summaries", synced)
	}
	return synced
}
