/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hyperledger/aries-framework-go/pkg/common/log"

	"github.com/waci-exchange/orchestrator/pkg/controller/command"
)

var logger = log.New("exchange-orchestrator/rest")

// genericErrorBody is the JSON error body written on command failures.
type genericErrorBody struct {
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}

// Execute runs the command and writes a command error, if any, to the
// response with the HTTP status derived from the error type.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	if err := exec(rw, req); err != nil {
		SendError(rw, err)
	}
}

// SendError writes the command error to the response. Validation errors map
// to 400, execution errors to 500.
func SendError(rw http.ResponseWriter, err command.Error) {
	switch err.Type() {
	case command.ValidationError:
		SendHTTPStatusError(rw, http.StatusBadRequest, err.Code(), err)
	default:
		SendHTTPStatusError(rw, http.StatusInternalServerError, err.Code(), err)
	}
}

// SendHTTPStatusError writes an error response with the given HTTP status.
func SendHTTPStatusError(rw http.ResponseWriter, httpStatus int, code command.Code, err error) {
	rw.WriteHeader(httpStatus)

	if encErr := json.NewEncoder(rw).Encode(genericErrorBody{Code: code, Message: err.Error()}); encErr != nil {
		logger.Errorf("write error response: %v", encErr)
	}
}
