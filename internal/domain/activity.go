package domain

import "time"

// ActivityType classifies an audit entry
type ActivityType string

// Possible activity types
const (
	ActivityStatusChange   ActivityType = "STATUS_CHANGE"
	ActivityOutreachQueued ActivityType = "OUTREACH_QUEUED"
	ActivityOutreachSent   ActivityType = "OUTREACH_SENT"
	ActivityNote           ActivityType = "NOTE"
)

// IsValid reports whether t is a known activity type.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityStatusChange, ActivityOutreachQueued, ActivityOutreachSent, ActivityNote:
		return true
	default:
		return false
	}
}

// Activity is an immutable audit entry recording a status change or task
// outcome for a vendor.
type Activity struct {
	ID          string
	VendorID    string
	Type        ActivityType
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Validate checks if the Activity has valid data.
func (a *Activity) Validate() error {
	if a.VendorID == "" {
		return ErrEmptyVendorID
	}
	if !a.Type.IsValid() {
		return ErrInvalidActivityType
	}
	return nil
}

// TaskID returns the id of the task that produced the entry, if any.
func (a *Activity) TaskID() string {
	s, _ := a.Metadata[MetaTaskID].(string)
	return s
}

// DocumentType is a compliance document submitted for verification
type DocumentType string

// Supported document types
const (
	DocumentCOI DocumentType = "COI"
	DocumentW9  DocumentType = "W9"
)

// IsValid reports whether d is a supported document type.
func (d DocumentType) IsValid() bool {
	return d == DocumentCOI || d == DocumentW9
}
