package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"runclub/crypto"
	"runclub/native/common"
	"runclub/native/runclub"
	"runclub/native/token"
)

var errMissingSigner = errors.New("request is not signed")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		replacer := strings.NewReplacer(
			"\\", "\\\\",
			"\"", "\\\"",
			"\n", "\\n",
			"\r", "\\r",
			"\t", "\\t",
		)
		payload = []byte(fmt.Sprintf("{\"error\":\"%s\"}", replacer.Replace(message)))
	}
	_, _ = w.Write(payload)
}

// writeEngineError maps engine and runtime failures onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, runclub.ErrClubNotFound),
		errors.Is(err, runclub.ErrMemberNotFound),
		errors.Is(err, token.ErrTokenNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, runclub.ErrNotAuthorized),
		errors.Is(err, runclub.ErrAuthorizationRequired),
		errors.Is(err, token.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, runclub.ErrDuplicateMember),
		errors.Is(err, runclub.ErrAlreadyActive),
		errors.Is(err, runclub.ErrFundsRemaining),
		errors.Is(err, runclub.ErrAlreadyInitialized),
		errors.Is(err, token.ErrTokenExists):
		return http.StatusConflict
	case errors.Is(err, runclub.ErrInvalidRate),
		errors.Is(err, runclub.ErrInvalidDuration),
		errors.Is(err, runclub.ErrInvalidAmount),
		errors.Is(err, runclub.ErrInvalidWithdrawalRule),
		errors.Is(err, runclub.ErrAmountOverflow),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, crypto.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, runclub.ErrClubInactive),
		errors.Is(err, runclub.ErrNotMember),
		errors.Is(err, runclub.ErrPeriodNotEnded),
		errors.Is(err, runclub.ErrNoTokensToRedeem),
		errors.Is(err, runclub.ErrInsufficientPoolFunds),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, errMissingSigner):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
