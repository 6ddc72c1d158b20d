package video

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stub is an in-process provider for development and tests: tasks succeed
// a fixed delay after dispatch, with a synthetic result URL.
type Stub struct {
	mu    sync.Mutex
	tasks map[string]time.Time
	seq   int

	// Delay before a dispatched task reports success.
	Delay time.Duration
}

// NewStub creates a stub provider whose tasks complete after delay.
func NewStub(delay time.Duration) *Stub {
	return &Stub{tasks: make(map[string]time.Time), Delay: delay}
}

func (s *Stub) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("stub-task-%04d", s.seq)
	s.tasks[id] = time.Now().Add(s.Delay)
	return id, nil
}

func (s *Stub) PollStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return TaskStatus{}, err
	}
	s.mu.Lock()
	readyAt, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return TaskStatus{}, fmt.Errorf("video: unknown stub task %q", taskID)
	}
	if time.Now().Before(readyAt) {
		return TaskStatus{State: TaskProcessing}, nil
	}
	return TaskStatus{
		State:     TaskSucceeded,
		ResultURL: fmt.Sprintf("https://cdn.example.com/stub/%s.mp4", taskID),
	}, nil
}

var _ Client = (*Stub)(nil)
