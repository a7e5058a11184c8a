package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/shutter-network/SealedBidRFP/bidcipher"
	"github.com/shutter-network/SealedBidRFP/orchestrator"
	"github.com/shutter-network/SealedBidRFP/storage/ledger"
	"github.com/shutter-network/SealedBidRFP/timelock"
)

// ErrBadRequest is returned when the provided HTTP request
// is malformed.
var ErrBadRequest = errors.New("invalid request parameters")

// HumanReadableError is the JSON body of every non-2xx response.
type HumanReadableError struct {
	Msg string `json:"msg"`
}

// HttpCodeForError maps a workflow error to its HTTP status code. A
// decryption key that has not been released yet is not a failure, only
// an instruction to retry later, hence 202.
func HttpCodeForError(err error) int {
	var svcErr *timelock.ServiceError
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, timelock.ErrKeyNotReleased):
		return http.StatusAccepted
	case errors.Is(err, ledger.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusBadGateway
	case errors.As(err, &svcErr):
		return http.StatusBadGateway
	case errors.Is(err, bidcipher.ErrDecryptionFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, HttpCodeForError(err))
	render.JSON(w, r, HumanReadableError{Msg: err.Error()})
}
