package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/vendorflow/internal/api/shared"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
)

// vendorIDParam is the chi route parameter naming the vendor.
const vendorIDParam = "id"

// pathVendorID extracts the vendor id from the route and returns a request
// logger annotated with it and the operator. It writes a 400 and returns
// false when the id is missing.
func pathVendorID(w http.ResponseWriter, r *http.Request) (string, *slog.Logger, bool) {
	log := logger.FromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, vendorIDParam))
	if id == "" {
		HandleAPIError(w, r, domain.ErrEmptyVendorID, "")
		return "", log, false
	}

	log = log.With(slog.String("vendor_id", id))
	if op, ok := shared.GetOperator(r.Context()); ok {
		log = log.With(slog.String("operator", op))
	}
	return id, log, true
}

// decodeAndValidate decodes the body into req and validates it, writing a
// 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		respondDecodeError(w, r, err)
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}

func respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrEmptyBody) {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
}
