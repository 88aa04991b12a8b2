package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Error codes sent in the error_code field.
const (
	CodeAuthenticationFailed = "AuthenticationFailed"
	CodeConflict             = "Conflict"
	CodeValidation           = "ValidationError"
	CodeNotFound             = "NotFound"
	CodeBadRequest           = "BadRequest"
	CodeInternal             = "InternalError"
)

// authFailedDetail is the only detail a client ever sees for a rejected
// credential or token.
const authFailedDetail = "authentication failed"

type errorBody struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail"`
}

func errorResponse(err error) errorBody {
	switch {
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrReservationInvalid):
		return errorBody{StatusCode: http.StatusUnauthorized, ErrorCode: CodeAuthenticationFailed, Detail: authFailedDetail}
	case errors.Is(err, common.ErrorAlreadyExists):
		return errorBody{StatusCode: http.StatusConflict, ErrorCode: CodeConflict, Detail: err.Error()}
	case errors.Is(err, common.ErrorValidation):
		return errorBody{StatusCode: http.StatusUnprocessableEntity, ErrorCode: CodeValidation, Detail: err.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return errorBody{StatusCode: http.StatusNotFound, ErrorCode: CodeNotFound, Detail: "not found"}
	case errors.Is(err, errBadRequest):
		return errorBody{StatusCode: http.StatusBadRequest, ErrorCode: CodeBadRequest, Detail: err.Error()}
	default:
		return errorBody{StatusCode: http.StatusInternalServerError, ErrorCode: CodeInternal, Detail: "internal error"}
	}
}

func respondError(w http.ResponseWriter, err error) {
	body := errorResponse(err)
	if body.StatusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	respondJSON(w, body.StatusCode, body)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
