package video

import "context"

// TaskState is the normalized three-state view of a provider task.
type TaskState string

const (
	TaskProcessing TaskState = "processing"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
)

// TaskStatus is the single internal shape every provider wire variant is
// normalized into.
type TaskStatus struct {
	State     TaskState
	ResultURL string
	Message   string
}

// DispatchRequest carries everything the provider needs for one capped
// generation call.
type DispatchRequest struct {
	Script      string
	ImageURLs   []string
	AspectRatio string
	Seconds     int
	// BackendName is the provider-side model identifier from the catalog.
	BackendName string
	RiskHint    string
	TierHint    string
	RequestID   string
}

// Client is the video-generation provider boundary.
type Client interface {
	Dispatch(ctx context.Context, req DispatchRequest) (string, error)
	PollStatus(ctx context.Context, taskID string) (TaskStatus, error)
}
