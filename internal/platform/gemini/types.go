package gemini

import "github.com/phrazzld/vendorflow/internal/domain"

// outreachData is passed to the outreach prompt template
type outreachData struct {
	Profile domain.VendorProfile
}

// verifyData is passed to the verification prompt template
type verifyData struct {
	DocumentType domain.DocumentType
	VendorName   string
	Specialty    string
}

// chatData is passed to the conversation prompt template
type chatData struct {
	Message string
}

// verificationSchema is the JSON the model returns for a document check
type verificationSchema struct {
	Valid     *bool          `json:"valid"`
	Reasoning string         `json:"reasoning"`
	Extracted map[string]any `json:"extracted,omitempty"`
}

// conversationSchema is the JSON the model returns for a conversation turn
type conversationSchema struct {
	Reply  string `json:"reply"`
	Status string `json:"status"`
}
