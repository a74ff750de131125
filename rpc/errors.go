package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendcore/core"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/native/token"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeNotFound       = -32004
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeServerError    = -32000
	codeRejected       = -32010
	codeRateLimited    = -32020
	codeUnavailable    = -32030
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: APIError{Code: code, Message: message, Data: data}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorClass struct {
	target error
	status int
	code   int
}

// errorClasses maps domain failures to transport statuses. The first match wins.
var errorClasses = []errorClass{
	{core.ErrBadSignature, http.StatusUnauthorized, codeUnauthorized},
	{core.ErrBadNonce, http.StatusConflict, codeRejected},
	{core.ErrEmptyBatch, http.StatusBadRequest, codeInvalidRequest},
	{core.ErrUnknownInstruction, http.StatusBadRequest, codeInvalidRequest},
	{core.ErrInvalidParams, http.StatusBadRequest, codeInvalidParams},
	{nativecommon.ErrModulePaused, http.StatusServiceUnavailable, codeUnavailable},
	{lending.ErrUnauthorized, http.StatusForbidden, codeForbidden},
	{lending.ErrNotBernanke, http.StatusForbidden, codeForbidden},
	{lending.ErrObligationNotOwned, http.StatusForbidden, codeForbidden},
	{oracle.ErrNotPublisher, http.StatusForbidden, codeForbidden},
	{token.ErrMintAuthority, http.StatusForbidden, codeForbidden},
	{lending.ErrMarketNotFound, http.StatusNotFound, codeNotFound},
	{lending.ErrReserveNotFound, http.StatusNotFound, codeNotFound},
	{lending.ErrObligationNotFound, http.StatusNotFound, codeNotFound},
	{oracle.ErrUnknownFeed, http.StatusNotFound, codeNotFound},
	{token.ErrUnknownMint, http.StatusNotFound, codeNotFound},
	{lending.ErrNilState, http.StatusInternalServerError, codeServerError},
}

// classify returns the HTTP status and error code for err. Unlisted errors
// from a batch are business rule rejections.
func classify(err error) (int, int) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code
		}
	}
	var batchErr *core.BatchError
	if errors.As(err, &batchErr) {
		return http.StatusUnprocessableEntity, codeRejected
	}
	return http.StatusInternalServerError, codeServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	var data interface{}
	var batchErr *core.BatchError
	if errors.As(err, &batchErr) {
		data = map[string]interface{}{"index": batchErr.Index, "op": batchErr.Op}
	}
	writeError(w, status, code, err.Error(), data)
}
