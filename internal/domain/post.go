package domain

import "time"

// Post is a content item fetched from the platform.
type Post struct {
	ID        string
	Title     string
	URL       string // empty for text posts
	Community string
	CreatedAt time.Time
}

// Age reports how old the post is at now.
func (p Post) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
