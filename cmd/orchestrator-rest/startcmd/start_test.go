/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type mockServer struct{}

func (s *mockServer) ListenAndServe(host string, handler http.Handler, certFile, keyFile string) error {
	return nil
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start the orchestrator", startCmd.Short)
	require.Equal(t, "Start the credential exchange orchestrator", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, agentHostFlagName, agentHostFlagShorthand, agentHostFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, databaseTypeFlagName, databaseTypeFlagShorthand, databaseTypeFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, agentWebhookFlagName, agentWebhookFlagShorthand, agentWebhookFlagUsage,
		"[]")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName,
	flagShorthand, flagUsage, expectedVal string) {
	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, expectedVal, flag.Value.String())
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + databaseTypeFlagName, databaseTypeMemOption})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Equal(t,
		"Neither api-host (command line flag) nor ORCHESTRATOR_API_HOST (environment variable) have been set.",
		err.Error())
}

func TestStartCmdWithBlankHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
	})

	err = startCmd.Execute()
	require.ErrorIs(t, err, errMissingHost)
}

func TestStartCmdWithMissingDBTypeArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + agentHostFlagName, "localhost:8080"})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), databaseTypeFlagName)
}

func TestStartCmdWithInvalidDBType(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, "data-pond",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "database type not set to a valid type")
}

func TestStartCmdWithBadDatabaseTimeout(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + databaseTimeoutFlagName, "not-a-number",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse db timeout")
}

func TestStartCmdWithBadLogLevel(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentLogLevelFlagName, "LOUD",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse log level")
}

func TestStartCmdWithBadOutboundTransport(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentOutboundTransportFlagName, "smoke-signal",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "outbound transport [smoke-signal] not supported")
}

func TestStartCmdWithBadInboundHost(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentInboundHostFlagName, "no-scheme-separator",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid inbound host option")
}

func TestStartCmdWithBadResolverOption(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentHTTPResolverFlagName, "no-method-separator",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid http resolver options found")
}

func TestStartCmdValidArgs(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentDefaultLabelFlagName, "exchange-orchestrator",
		"--" + agentServiceEndpointFlagName, "https://orchestrator.example.com",
		"--" + agentOutboundTransportFlagName, httpProtocol,
	})

	require.NoError(t, startCmd.Execute())
}

func TestStartCmdValidArgsEnvVariable(t *testing.T) {
	require.NoError(t, os.Setenv(agentHostEnvKey, "localhost:8080"))
	require.NoError(t, os.Setenv(databaseTypeEnvKey, databaseTypeMemOption))

	defer func() {
		require.NoError(t, os.Unsetenv(agentHostEnvKey))
		require.NoError(t, os.Unsetenv(databaseTypeEnvKey))
	}()

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.NoError(t, startCmd.Execute())
}

func TestGetInboundSchemeToURLMap(t *testing.T) {
	m, err := getInboundSchemeToURLMap([]string{"http@localhost:9090", "ws@localhost:9091"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"http": "localhost:9090", "ws": "localhost:9091"}, m)

	_, err = getInboundSchemeToURLMap([]string{"localhost:9090"})
	require.Error(t, err)
}

func TestGetOutboundTransportOpts(t *testing.T) {
	opts, err := getOutboundTransportOpts([]string{httpProtocol, websocketProtocol})
	require.NoError(t, err)
	require.Len(t, opts, 1)

	opts, err = getOutboundTransportOpts(nil)
	require.NoError(t, err)
	require.Empty(t, opts)
}

func TestGetResolverOpts(t *testing.T) {
	opts, err := getResolverOpts([]string{"sample@http://sample.example.com"})
	require.NoError(t, err)
	require.Len(t, opts, 1)

	opts, err = getResolverOpts(nil)
	require.NoError(t, err)
	require.Empty(t, opts)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, setLogLevel("DEBUG"))
	require.NoError(t, setLogLevel(""))
	require.Error(t, setLogLevel("LOUD"))
}

func TestAuthorizationMiddleware(t *testing.T) {
	const token = "sample-bearer-token" // nolint:gosec

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := authorizationMiddleware(token)(next)

	t.Run("accepts the configured token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/exchange/issued-credentials", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/exchange/issued-credentials", nil)
		req.Header.Set("Authorization", "Bearer wrong")

		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/exchange/issued-credentials", nil)

		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
