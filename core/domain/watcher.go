package domain

import "time"

// Watcher is a user-declared intent: a natural-language description of
// what emails to catch, plus a similarity threshold.
type Watcher struct {
	ID             string
	MailboxID      string
	Name           string
	QueryText      string
	QueryEmbedding []float32
	Threshold      float64
	IsActive       bool
	CreatedAt      time.Time
}

// DefaultWatcherThreshold is the default cosine-similarity cutoff.
const DefaultWatcherThreshold = 0.7

// WatcherPrototype is one vector-embedded sentence belonging to a
// watcher: the seed query or one of its LLM-expanded paraphrases. Top-K
// search runs over prototypes; a watcher's score is its best prototype.
type WatcherPrototype struct {
	WatcherID      string
	QueryID        string
	QueryText      string
	QueryEmbedding []float32
}

// WatcherMatch is one row returned by match_watcher_queries, ordered by
// ascending cosine distance.
type WatcherMatch struct {
	WatcherID        string
	WatcherName      string
	WatcherThreshold float64
	QueryID          string
	QueryText        string
	CosineDistance   float64
}

// Similarity converts the stored cosine distance into [0,1] similarity.
func (m WatcherMatch) Similarity() float64 {
	return 1 - m.CosineDistance
}
