package domain

import "time"

// TaskType identifies the handler responsible for a task
type TaskType string

// Task type constants
const (
	// TaskTypeGenerate produces an outreach message for a vendor
	TaskTypeGenerate TaskType = "GENERATE"
	// TaskTypeSend delivers a generated message over a notification channel
	TaskTypeSend TaskType = "SEND"
	// TaskTypeVerify checks a vendor's compliance document
	TaskTypeVerify TaskType = "VERIFY"
	// TaskTypeChat advances the onboarding conversation by one turn
	TaskTypeChat TaskType = "CHAT"
)

// IsValid reports whether t is a recognized task type.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeGenerate, TaskTypeSend, TaskTypeVerify, TaskTypeChat:
		return true
	default:
		return false
	}
}

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusClaimed   TaskStatus = "CLAIMED"
	TaskStatusRetry     TaskStatus = "RETRY"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusClaimed, TaskStatusRetry,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the task has finished for good.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Well-known metadata keys.
const (
	MetaSubtype      = "subtype"
	MetaChannel      = "channel"
	MetaRecipient    = "recipient"
	MetaSubject      = "subject"
	MetaBody         = "body"
	MetaDocumentType = "docType"
	MetaMessage      = "message"
	MetaTaskID       = "taskId"
)

// Task is a unit of asynchronous work tied to one vendor.
type Task struct {
	ID          string
	VendorID    string
	Type        TaskType
	Status      TaskStatus
	ScheduledAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RetryCount  int
	Error       string
	Metadata    map[string]any
	ClaimedBy   string
	ClaimedAt   time.Time
}

// Subtype returns the optional handler refinement carried in metadata.
func (t *Task) Subtype() string {
	s, _ := t.Metadata[MetaSubtype].(string)
	return s
}

// MetaString returns a string metadata value, or "" when absent.
func (t *Task) MetaString(key string) string {
	s, _ := t.Metadata[key].(string)
	return s
}
