package video

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireTask covers every task payload shape the provider has shipped.
// Current responses use a string status and a nested output object; legacy
// responses use a numeric code and a JSON-string-wrapped works array. All
// variants are collapsed here, at the client boundary, into TaskStatus —
// nothing past this file knows the wire ever varied.
type wireTask struct {
	TaskID   string `json:"task_id"`
	LegacyID string `json:"id"`

	Status     string `json:"status"`
	StatusCode *int   `json:"status_code"`

	Output struct {
		VideoURL string `json:"video_url"`
		Video    struct {
			URL string `json:"url"`
		} `json:"video"`
		// Works is the legacy result field: either a JSON array of
		// {resource: {url}} objects, or that same array wrapped in a JSON
		// string.
		Works json.RawMessage `json:"works"`
	} `json:"output"`

	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	LegacyMessage string `json:"message"`
}

// Legacy numeric task codes.
const (
	codeQueued     = 0
	codeProcessing = 1
	codeSucceeded  = 2
	codeFailed     = 3
	codeExpired    = 4
)

func (t wireTask) id() string {
	if t.TaskID != "" {
		return t.TaskID
	}
	return t.LegacyID
}

// legacy reports whether the payload used the old numeric-code shape.
func (t wireTask) legacy() bool {
	return t.Status == "" && t.StatusCode != nil
}

func (t wireTask) normalize() (TaskStatus, error) {
	state, err := t.state()
	if err != nil {
		return TaskStatus{}, err
	}
	status := TaskStatus{State: state, Message: t.message()}
	if state == TaskSucceeded {
		status.ResultURL = t.resultURL()
		if status.ResultURL == "" {
			// A success without a result is unusable; treat it as failure
			// so the saga refunds instead of completing an empty job.
			status.State = TaskFailed
			status.Message = "provider reported success without a result url"
		}
	}
	return status, nil
}

func (t wireTask) state() (TaskState, error) {
	if t.Status != "" {
		switch strings.ToLower(t.Status) {
		case "pending", "queued", "staged", "processing", "running":
			return TaskProcessing, nil
		case "success", "succeeded", "completed", "finished":
			return TaskSucceeded, nil
		case "failed", "error", "cancelled", "expired":
			return TaskFailed, nil
		default:
			return "", fmt.Errorf("unknown task status %q", t.Status)
		}
	}
	if t.StatusCode != nil {
		switch *t.StatusCode {
		case codeQueued, codeProcessing:
			return TaskProcessing, nil
		case codeSucceeded:
			return TaskSucceeded, nil
		case codeFailed, codeExpired:
			return TaskFailed, nil
		default:
			return "", fmt.Errorf("unknown task status code %d", *t.StatusCode)
		}
	}
	return "", fmt.Errorf("task payload carries neither status nor status_code")
}

func (t wireTask) message() string {
	if t.Error.Message != "" {
		return t.Error.Message
	}
	return t.LegacyMessage
}

func (t wireTask) resultURL() string {
	if t.Output.VideoURL != "" {
		return t.Output.VideoURL
	}
	if t.Output.Video.URL != "" {
		return t.Output.Video.URL
	}
	return firstWorkURL(t.Output.Works)
}

type workEntry struct {
	Resource struct {
		URL string `json:"url"`
	} `json:"resource"`
	URL string `json:"url"`
}

func firstWorkURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	data := []byte(raw)
	// Legacy payloads wrap the array in a JSON string.
	var wrapped string
	if err := json.Unmarshal(data, &wrapped); err == nil {
		data = []byte(wrapped)
	}
	var works []workEntry
	if err := json.Unmarshal(data, &works); err != nil {
		return ""
	}
	for _, w := range works {
		if w.Resource.URL != "" {
			return w.Resource.URL
		}
		if w.URL != "" {
			return w.URL
		}
	}
	return ""
}
