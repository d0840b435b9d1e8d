package store

import (
	"fmt"

	"github.com/phrazzld/vendorflow/internal/domain"
)

// Persisted field names. They are part of the external contract with
// inspection tooling and must not be renamed without a migration.
const (
	FieldID                = "id"
	FieldStatus            = "status"
	FieldCompanyName       = "companyName"
	FieldSpecialty         = "specialty"
	FieldLocation          = "location"
	FieldContactEmail      = "contactEmail"
	FieldContactPhone      = "contactPhone"
	FieldFitScore          = "fitScore"
	FieldReasoning         = "reasoning"
	FieldHasActiveContract = "hasActiveContract"
	FieldStatusUpdatedAt   = "statusUpdatedAt"
	FieldCreatedAt         = "createdAt"

	FieldVendorID    = "vendorId"
	FieldType        = "type"
	FieldScheduledAt = "scheduledAt"
	FieldRetryCount  = "retryCount"
	FieldError       = "error"
	FieldMetadata    = "metadata"
	FieldClaimedAt   = "claimedAt"
	FieldClaimedBy   = "claimedBy"
	FieldUpdatedAt   = "updatedAt"
	FieldCompletedAt = "completedAt"

	FieldDescription = "description"
)

// VendorFields encodes a vendor into its persisted layout.
func VendorFields(v domain.Vendor) Fields {
	return Fields{
		FieldID:                v.ID,
		FieldStatus:            string(v.Status),
		FieldCompanyName:       v.CompanyName,
		FieldSpecialty:         v.Specialty,
		FieldLocation:          v.Location,
		FieldContactEmail:      v.ContactEmail,
		FieldContactPhone:      v.ContactPhone,
		FieldFitScore:          v.FitScore,
		FieldReasoning:         v.Reasoning,
		FieldHasActiveContract: v.HasActiveContract,
		FieldStatusUpdatedAt:   FormatTime(v.StatusUpdatedAt),
		FieldCreatedAt:         FormatTime(v.CreatedAt),
	}
}

// DecodeVendor decodes a vendor document.
func DecodeVendor(doc Document) (domain.Vendor, error) {
	f := doc.Fields
	v := domain.Vendor{
		ID:                doc.ID,
		Status:            domain.VendorStatus(f.String(FieldStatus)),
		CompanyName:       f.String(FieldCompanyName),
		Specialty:         f.String(FieldSpecialty),
		Location:          f.String(FieldLocation),
		ContactEmail:      f.String(FieldContactEmail),
		ContactPhone:      f.String(FieldContactPhone),
		FitScore:          f.Float(FieldFitScore),
		Reasoning:         f.String(FieldReasoning),
		HasActiveContract: f.Bool(FieldHasActiveContract),
		StatusUpdatedAt:   f.Time(FieldStatusUpdatedAt),
		CreatedAt:         f.Time(FieldCreatedAt),
	}
	if !v.Status.IsValid() {
		return domain.Vendor{}, fmt.Errorf("%w: vendor %s has status %q",
			ErrInvalidEntity, doc.ID, v.Status)
	}
	return v, nil
}

// TaskFields encodes a task into its persisted layout. The error field is
// written only when set.
func TaskFields(t domain.Task) Fields {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	f := Fields{
		FieldVendorID:    t.VendorID,
		FieldType:        string(t.Type),
		FieldStatus:      string(t.Status),
		FieldScheduledAt: FormatTime(t.ScheduledAt),
		FieldCreatedAt:   FormatTime(t.CreatedAt),
		FieldUpdatedAt:   FormatTime(t.UpdatedAt),
		FieldRetryCount:  t.RetryCount,
		FieldMetadata:    meta,
	}
	if t.Error != "" {
		f[FieldError] = t.Error
	}
	if t.ClaimedBy != "" {
		f[FieldClaimedBy] = t.ClaimedBy
		f[FieldClaimedAt] = FormatTime(t.ClaimedAt)
	}
	return f
}

// DecodeTask decodes a task document.
func DecodeTask(doc Document) (domain.Task, error) {
	f := doc.Fields
	t := domain.Task{
		ID:          doc.ID,
		VendorID:    f.String(FieldVendorID),
		Type:        domain.TaskType(f.String(FieldType)),
		Status:      domain.TaskStatus(f.String(FieldStatus)),
		ScheduledAt: f.Time(FieldScheduledAt),
		CreatedAt:   f.Time(FieldCreatedAt),
		UpdatedAt:   f.Time(FieldUpdatedAt),
		RetryCount:  f.Int(FieldRetryCount),
		Error:       f.String(FieldError),
		Metadata:    f.Map(FieldMetadata),
		ClaimedBy:   f.String(FieldClaimedBy),
		ClaimedAt:   f.Time(FieldClaimedAt),
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if !t.Status.IsValid() {
		return domain.Task{}, fmt.Errorf("%w: task %s has status %q",
			ErrInvalidEntity, doc.ID, t.Status)
	}
	return t, nil
}

// ActivityFields encodes an activity into its persisted layout.
func ActivityFields(a domain.Activity) Fields {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Fields{
		FieldVendorID:    a.VendorID,
		FieldType:        string(a.Type),
		FieldDescription: a.Description,
		FieldMetadata:    meta,
		FieldCreatedAt:   FormatTime(a.CreatedAt),
	}
}

// DecodeActivity decodes an activity document.
func DecodeActivity(doc Document) domain.Activity {
	f := doc.Fields
	a := domain.Activity{
		ID:          doc.ID,
		VendorID:    f.String(FieldVendorID),
		Type:        domain.ActivityType(f.String(FieldType)),
		Description: f.String(FieldDescription),
		Metadata:    f.Map(FieldMetadata),
		CreatedAt:   f.Time(FieldCreatedAt),
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	return a
}
