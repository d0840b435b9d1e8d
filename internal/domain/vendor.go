package domain

import "time"

// VendorStatus represents a vendor's position in the onboarding lifecycle
type VendorStatus string

// Possible vendor status values
const (
	VendorStatusPendingReview VendorStatus = "PENDING_REVIEW"
	VendorStatusApproved      VendorStatus = "APPROVED"
	VendorStatusContacted     VendorStatus = "CONTACTED"
	VendorStatusNegotiating   VendorStatus = "NEGOTIATING"
	VendorStatusContracted    VendorStatus = "CONTRACTED"
	VendorStatusRejected      VendorStatus = "REJECTED"
)

// IsValid reports whether s is one of the known vendor statuses.
func (s VendorStatus) IsValid() bool {
	switch s {
	case VendorStatusPendingReview, VendorStatusApproved, VendorStatusContacted,
		VendorStatusNegotiating, VendorStatusContracted, VendorStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further lifecycle events are accepted.
func (s VendorStatus) IsTerminal() bool {
	return s == VendorStatusContracted || s == VendorStatusRejected
}

// Vendor is a prospective or engaged service provider moving through the
// review and outreach lifecycle.
type Vendor struct {
	ID                string
	Status            VendorStatus
	CompanyName       string
	Specialty         string
	Location          string
	ContactEmail      string
	ContactPhone      string
	FitScore          float64
	Reasoning         string
	HasActiveContract bool
	StatusUpdatedAt   time.Time
	CreatedAt         time.Time
}

// NewVendor creates a vendor awaiting review.
// Returns an error if validation fails.
func NewVendor(id, companyName string, now time.Time) (*Vendor, error) {
	v := &Vendor{
		ID:              id,
		Status:          VendorStatusPendingReview,
		CompanyName:     companyName,
		StatusUpdatedAt: now.UTC(),
		CreatedAt:       now.UTC(),
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	return v, nil
}

// Validate checks if the Vendor has valid data.
func (v *Vendor) Validate() error {
	if v.ID == "" {
		return ErrEmptyVendorID
	}

	if v.CompanyName == "" {
		return ErrEmptyCompanyName
	}

	if !v.Status.IsValid() {
		return ErrInvalidVendorStatus
	}

	return nil
}

// Profile returns the attributes handed to message generation.
func (v *Vendor) Profile() VendorProfile {
	return VendorProfile{
		VendorID:          v.ID,
		CompanyName:       v.CompanyName,
		Specialty:         v.Specialty,
		Location:          v.Location,
		FitScore:          v.FitScore,
		Reasoning:         v.Reasoning,
		HasActiveContract: v.HasActiveContract,
	}
}

// VendorProfile is the read-only view of a vendor used by AI capabilities.
type VendorProfile struct {
	VendorID          string  `json:"vendorId"`
	CompanyName       string  `json:"companyName"`
	Specialty         string  `json:"specialty"`
	Location          string  `json:"location"`
	FitScore          float64 `json:"fitScore"`
	Reasoning         string  `json:"reasoning"`
	HasActiveContract bool    `json:"hasActiveContract"`
}
