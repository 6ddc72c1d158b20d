package video

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizeJSON(t *testing.T, payload string) (TaskStatus, error) {
	t.Helper()
	var task wireTask
	require.NoError(t, json.Unmarshal([]byte(payload), &task))
	return task.normalize()
}

func TestNormalizeStringStatuses(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    TaskStatus
	}{
		{
			name:    "processing",
			payload: `{"task_id":"t1","status":"processing"}`,
			want:    TaskStatus{State: TaskProcessing},
		},
		{
			name:    "pending maps to processing",
			payload: `{"task_id":"t1","status":"Pending"}`,
			want:    TaskStatus{State: TaskProcessing},
		},
		{
			name:    "success with nested video url",
			payload: `{"task_id":"t1","status":"success","output":{"video":{"url":"https://cdn/v.mp4"}}}`,
			want:    TaskStatus{State: TaskSucceeded, ResultURL: "https://cdn/v.mp4"},
		},
		{
			name:    "completed with flat video url",
			payload: `{"task_id":"t1","status":"completed","output":{"video_url":"https://cdn/flat.mp4"}}`,
			want:    TaskStatus{State: TaskSucceeded, ResultURL: "https://cdn/flat.mp4"},
		},
		{
			name:    "failed with error message",
			payload: `{"task_id":"t1","status":"failed","error":{"message":"nsfw content"}}`,
			want:    TaskStatus{State: TaskFailed, Message: "nsfw content"},
		},
		{
			name:    "expired maps to failed",
			payload: `{"task_id":"t1","status":"expired"}`,
			want:    TaskStatus{State: TaskFailed},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeJSON(t, tc.payload)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeLegacyNumericCodes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    TaskStatus
	}{
		{
			name:    "queued",
			payload: `{"id":"legacy1","status_code":0}`,
			want:    TaskStatus{State: TaskProcessing},
		},
		{
			name:    "processing",
			payload: `{"id":"legacy1","status_code":1}`,
			want:    TaskStatus{State: TaskProcessing},
		},
		{
			name:    "succeeded with works array",
			payload: `{"id":"legacy1","status_code":2,"output":{"works":[{"resource":{"url":"https://cdn/w.mp4"}}]}}`,
			want:    TaskStatus{State: TaskSucceeded, ResultURL: "https://cdn/w.mp4"},
		},
		{
			name:    "failed with legacy message",
			payload: `{"id":"legacy1","status_code":3,"message":"render error"}`,
			want:    TaskStatus{State: TaskFailed, Message: "render error"},
		},
		{
			name:    "expired code",
			payload: `{"id":"legacy1","status_code":4}`,
			want:    TaskStatus{State: TaskFailed},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeJSON(t, tc.payload)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeStringWrappedWorks(t *testing.T) {
	// Oldest payloads ship the works array serialized into a JSON string.
	payload := `{"id":"legacy1","status_code":2,"output":{"works":"[{\"resource\":{\"url\":\"https://cdn/wrapped.mp4\"}}]"}}`
	got, err := normalizeJSON(t, payload)
	require.NoError(t, err)
	assert.Equal(t, TaskSucceeded, got.State)
	assert.Equal(t, "https://cdn/wrapped.mp4", got.ResultURL)
}

func TestNormalizeWorkEntryWithBareURL(t *testing.T) {
	payload := `{"id":"legacy1","status_code":2,"output":{"works":[{"url":"https://cdn/bare.mp4"}]}}`
	got, err := normalizeJSON(t, payload)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/bare.mp4", got.ResultURL)
}

func TestNormalizeSuccessWithoutResultBecomesFailure(t *testing.T) {
	payload := `{"task_id":"t1","status":"success","output":{}}`
	got, err := normalizeJSON(t, payload)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, got.State)
	assert.NotEmpty(t, got.Message)
}

func TestNormalizeUnknownShapes(t *testing.T) {
	_, err := normalizeJSON(t, `{"task_id":"t1","status":"dancing"}`)
	assert.Error(t, err)

	_, err = normalizeJSON(t, `{"task_id":"t1","status_code":9}`)
	assert.Error(t, err)

	_, err = normalizeJSON(t, `{"task_id":"t1"}`)
	assert.Error(t, err)
}

func TestWireTaskIDPrefersCurrentField(t *testing.T) {
	task := wireTask{TaskID: "new", LegacyID: "old"}
	assert.Equal(t, "new", task.id())
	task.TaskID = ""
	assert.Equal(t, "old", task.id())
}

func TestStringStatusWinsOverNumericCode(t *testing.T) {
	payload := `{"task_id":"t1","status":"processing","status_code":3}`
	got, err := normalizeJSON(t, payload)
	require.NoError(t, err)
	assert.Equal(t, TaskProcessing, got.State)
}
