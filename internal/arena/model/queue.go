package model

import "time"

// QueueEntry is one waiting player in a matchmaking queue.
// The sorted-set score is the composite rating; JoinedAt comes from the
// player's wait marker and drives range expansion and FIFO batching.
type QueueEntry struct {
	UserID   int64
	Rating   float64
	JoinedAt time.Time
}

// Waited returns how long the entry has been queued at the given instant.
func (e QueueEntry) Waited(now time.Time) time.Duration {
	if e.JoinedAt.IsZero() || now.Before(e.JoinedAt) {
		return 0
	}
	return now.Sub(e.JoinedAt)
}
