package domain

import "time"

// ModelEntry describes one stored model envelope.
type ModelEntry struct {
	Key      string
	Name     string
	StoredAt time.Time
	Size     int
}
