/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waci-exchange/orchestrator/pkg/controller/command"
)

const sampleCode = command.Code(command.Exchange)

func TestSendError(t *testing.T) {
	tests := []struct {
		err        command.Error
		statusCode int
	}{
		{command.NewValidationError(sampleCode, errors.New("bad input")), http.StatusBadRequest},
		{command.NewExecuteError(sampleCode, errors.New("bad input")), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		rr := httptest.NewRecorder()

		SendError(rr, tc.err)
		require.Equal(t, tc.statusCode, rr.Code)

		response := genericErrorBody{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.Equal(t, genericErrorBody{Code: sampleCode, Message: "bad input"}, response)
	}
}

func TestSendHTTPStatusError(t *testing.T) {
	rr := httptest.NewRecorder()

	SendHTTPStatusError(rr, http.StatusForbidden, sampleCode, errors.New("denied"))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), `"message":"denied"`)
}

func TestSendHTTPStatusErrorWriteFailure(t *testing.T) {
	SendHTTPStatusError(&failingResponseWriter{}, http.StatusBadRequest, command.UnknownStatus, errors.New("sample"))
}

func TestExecute(t *testing.T) {
	t.Run("success writes command output", func(t *testing.T) {
		cmd := func(rw io.Writer, req io.Reader) command.Error {
			fmt.Fprint(rw, `{"ok":true}`)

			return nil
		}

		rr := httptest.NewRecorder()
		Execute(cmd, rr, nil)
		require.Equal(t, `{"ok":true}`, rr.Body.String())
	})

	t.Run("failure writes error body", func(t *testing.T) {
		cmd := func(rw io.Writer, req io.Reader) command.Error {
			return command.NewValidationError(1, errors.New("sample"))
		}

		rr := httptest.NewRecorder()
		Execute(cmd, rr, nil)
		require.Contains(t, rr.Body.String(), `{"code":1,"message":"sample"}`)
	})
}

type failingResponseWriter struct{}

func (m *failingResponseWriter) Header() http.Header {
	return make(map[string][]string)
}

func (m *failingResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("failed to write body")
}

func (m *failingResponseWriter) WriteHeader(statusCode int) {}
