// Package social defines the contracts for the social-network collaborator.
// Posting, following, and follower counts live outside this repository; the
// growth loop only ever sees these interfaces.
package social

import "context"

// PostResult reports the outcome of a publish attempt.
type PostResult struct {
	Success   bool   `json:"success"`
	ContentID string `json:"content_id"`
}

// Publisher publishes content to the social network.
type Publisher interface {
	PostContent(ctx context.Context, text string) (PostResult, error)
}

// FollowerSource provides point-in-time follower counts.
type FollowerSource interface {
	CurrentFollowerCount(ctx context.Context) (int, error)
}
