package client

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing indicator lives without a refresh.
const DefaultTypingTTL = 5 * time.Second

// TypingTracker aggregates who is typing per chat. Entries expire on their
// own since a stop-typing event may never arrive.
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]map[string]time.Time
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{ttl: ttl, now: time.Now, entries: make(map[string]map[string]time.Time)}
}

// Start marks userID as typing in chatID, refreshing the expiry.
func (t *TypingTracker) Start(chatID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.entries[chatID]
	if !ok {
		users = make(map[string]time.Time)
		t.entries[chatID] = users
	}
	users[userID] = t.now().Add(t.ttl)
}

func (t *TypingTracker) Stop(chatID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.entries[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.entries, chatID)
		}
	}
}

// Active returns the sorted ids still typing in chatID.
func (t *TypingTracker) Active(chatID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	users := t.entries[chatID]
	out := make([]string, 0, len(users))
	for id, expires := range users {
		if now.After(expires) {
			delete(users, id)
			continue
		}
		out = append(out, id)
	}
	if len(users) == 0 {
		delete(t.entries, chatID)
	}
	sort.Strings(out)
	return out
}
