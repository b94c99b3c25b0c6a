package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/internal/spreadsheet"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

var (
	errNoIdentity = errors.New("missing " + UserHeader + " header")
	errBadRequest = errors.New("bad request")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string                 `json:"error"`
	Errors []spreadsheet.RowError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps service and storage errors to HTTP status codes.
func statusOf(err error) int {
	var verr *spreadsheet.ValidationError
	switch {
	case errors.Is(err, errNoIdentity), errors.Is(err, ledger.ErrNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotMember), errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDuplicate),
		errors.Is(err, ledger.ErrOwnerRemoval),
		errors.Is(err, types.ErrInvitationClosed):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvitationExpired):
		return http.StatusGone
	case errors.As(err, &verr),
		errors.Is(err, spreadsheet.ErrNoTransactionSheet),
		errors.Is(err, spreadsheet.ErrUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest),
		errors.Is(err, spreadsheet.ErrInvalidLayout),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrInvalidData),
		errors.Is(err, types.ErrInvalidName),
		errors.Is(err, types.ErrInvalidRole),
		errors.Is(err, types.ErrInvalidKind),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrInvalidDate),
		errors.Is(err, types.ErrInvalidMonth),
		errors.Is(err, types.ErrInvalidCategory),
		errors.Is(err, types.ErrInvalidCategoryType),
		errors.Is(err, types.ErrInvalidTransactionType),
		errors.Is(err, types.ErrInvalidCurrency):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Internal errors are logged
// and their text is not sent to the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := statusOf(err)
	body := errorBody{Error: err.Error()}
	var verr *spreadsheet.ValidationError
	if errors.As(err, &verr) {
		body.Errors = verr.Errors
	}
	if code == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		body.Error = http.StatusText(code)
	}
	writeJSON(w, code, body)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	writeError(w, s.logger, err)
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
