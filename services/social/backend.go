package social

import "context"

// PublishRequest is the read-only snapshot of a task handed to a backend.
// Backends never touch the database; all state they need travels here.
type PublishRequest struct {
	TaskID   int64
	Platform Platform
	Language string
	Topic    string
	Caption  string
	ImageURL string
	VideoURL string
	Link     string
}

// PublishResult is a backend's successful outcome. Pending marks an
// optimistic webhook publish that awaits an inbound confirmation callback.
type PublishResult struct {
	PostID  string
	PostURL string
	Pending bool
}

// Backend publishes one task to one platform. Errors carry an errutil kind
// that the dispatcher converts into a state-machine transition.
type Backend interface {
	Kind() Method
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
