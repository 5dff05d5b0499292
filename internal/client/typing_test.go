package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingTrackerExpires(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTypingTracker(0)
	tr.now = func() time.Time { return now }

	tr.Start("c1", "s1")
	tr.Start("c1", "u2")
	assert.Equal(t, []string{"s1", "u2"}, tr.Active("c1"))

	now = now.Add(3 * time.Second)
	tr.Start("c1", "u2")
	now = now.Add(3 * time.Second)
	assert.Equal(t, []string{"u2"}, tr.Active("c1"))

	tr.Stop("c1", "u2")
	assert.Empty(t, tr.Active("c1"))
	assert.Empty(t, tr.Active("other"))
}
