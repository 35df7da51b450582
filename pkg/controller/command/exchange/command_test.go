/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/waci-exchange/orchestrator/pkg/controller/command"
	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/invitation"
	"github.com/waci-exchange/orchestrator/pkg/exchange/orchestrator"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
)

type memProvider struct {
	provider spistorage.Provider
}

func (p *memProvider) StorageProvider() spistorage.Provider {
	return p.provider
}

type mockAgent struct {
	invitationID  string
	rawInvitation string
	createErr     error

	sentMessage  json.RawMessage
	sentTheirDID string
	sendErr      error
}

func (m *mockAgent) CreateInvitation(flow exchange.CredentialFlow) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}

	if m.rawInvitation != "" {
		return m.rawInvitation, nil
	}

	goalCode := invitation.GoalCodeIssuance
	if flow == exchange.FlowPresentation {
		goalCode = invitation.GoalCodePresentation
	}

	return invitation.Encode("https://agent.example.com", invitation.Build(m.invitationID, goalCode))
}

func (m *mockAgent) SendMessage(msg json.RawMessage, theirDID string) error {
	m.sentMessage = msg
	m.sentTheirDID = theirDID

	return m.sendErr
}

type mockNotifier struct {
	topics []string
}

func (m *mockNotifier) Notify(topic string, message []byte) error {
	m.topics = append(m.topics, topic)

	return nil
}

func newCommand(t *testing.T, a *mockAgent) (*Command, *store.Store[exchange.IssuancePayload],
	*store.Store[exchange.PresentationPayload]) {
	t.Helper()

	provider := &memProvider{provider: mem.NewProvider()}

	credentials, err := store.Open[exchange.IssuancePayload](provider, "credentialexchange")
	require.NoError(t, err)

	presentations, err := store.Open[exchange.PresentationPayload](provider, "presentationexchange")
	require.NoError(t, err)

	return New(a, credentials, presentations), credentials, presentations
}

func execCreateInvitation(t *testing.T, cmd *Command, args CreateInvitationArgs) (*CreateInvitationResponse,
	command.Error) {
	t.Helper()

	reqBytes, err := json.Marshal(args)
	require.NoError(t, err)

	var w bytes.Buffer

	cmdErr := cmd.CreateInvitation(&w, bytes.NewReader(reqBytes))
	if cmdErr != nil {
		return nil, cmdErr
	}

	response := &CreateInvitationResponse{}
	require.NoError(t, json.Unmarshal(w.Bytes(), response))

	return response, nil
}

func TestGetHandlers(t *testing.T) {
	cmd, _, _ := newCommand(t, &mockAgent{invitationID: "abc123"})
	require.Len(t, cmd.GetHandlers(), 3)
}

func TestCreateInvitation(t *testing.T) {
	t.Run("issuance happy path", func(t *testing.T) {
		agent := &mockAgent{invitationID: "abc123"}
		cmd, credentials, presentations := newCommand(t, agent)

		response, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: string(invitation.GoalCodeIssuance),
			CredentialData: map[string]interface{}{
				"issuerDid":         "did:example:issuer",
				"credentialSubject": map[string]interface{}{"name": "Alice"},
			},
		})
		require.Nil(t, cmdErr)
		require.Equal(t, "abc123", response.Invitation.ID)
		require.Equal(t, invitation.GoalCodeIssuance, response.Invitation.GoalCode)

		// a later issuer callback resolves exactly the stored payload
		notifier := &mockNotifier{}
		o := orchestrator.New(credentials, presentations, notifier)

		credentialOffer, err := o.IssueCredentials("abc123", "did:example:holder1")
		require.NoError(t, err)
		require.NotNil(t, credentialOffer)
		require.Equal(t, map[string]interface{}{"name": "Alice"}, credentialOffer.CredentialSubject)
		require.Equal(t, []string{string(exchange.TopicCredentialIssued)}, notifier.topics)
	})

	t.Run("presentation happy path", func(t *testing.T) {
		agent := &mockAgent{invitationID: "inv-42"}
		cmd, credentials, presentations := newCommand(t, agent)

		response, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode:         string(invitation.GoalCodePresentation),
			PresentationData: []interface{}{map[string]interface{}{"id": "d1"}},
		})
		require.Nil(t, cmdErr)
		require.Equal(t, "inv-42", response.Invitation.ID)

		o := orchestrator.New(credentials, presentations, &mockNotifier{})

		definition, err := o.PresentationDefinition("inv-42")
		require.NoError(t, err)
		require.NotNil(t, definition)
		require.Len(t, definition.InputDescriptors, 1)
		require.Equal(t, "d1", definition.InputDescriptors[0].ID)
	})

	t.Run("invitation without payload stores nothing", func(t *testing.T) {
		cmd, credentials, _ := newCommand(t, &mockAgent{invitationID: "abc123"})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: string(invitation.GoalCodeIssuance),
		})
		require.Nil(t, cmdErr)

		_, ok, err := credentials.Get("abc123")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unsupported goal code", func(t *testing.T) {
		cmd, credentials, presentations := newCommand(t, &mockAgent{invitationID: "abc123"})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: "bogus",
			CredentialData: map[string]interface{}{
				"credentialSubject": map[string]interface{}{"name": "Alice"},
			},
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, UnsupportedGoalCodeErrorCode, cmdErr.Code())
		require.ErrorContains(t, cmdErr, "unsupported goal code")

		// no store mutation occurs
		credentialEntries, err := credentials.List()
		require.NoError(t, err)
		require.Empty(t, credentialEntries)

		presentationEntries, err := presentations.List()
		require.NoError(t, err)
		require.Empty(t, presentationEntries)
	})

	t.Run("invalid credential payload", func(t *testing.T) {
		cmd, credentials, _ := newCommand(t, &mockAgent{invitationID: "abc123"})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode:       string(invitation.GoalCodeIssuance),
			CredentialData: map[string]interface{}{"issuerDid": "did:example:issuer"},
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, InvalidPayloadErrorCode, cmdErr.Code())
		require.ErrorContains(t, cmdErr, "invalid exchange payload")

		entries, err := credentials.List()
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("credential payload without issuer identity", func(t *testing.T) {
		cmd, credentials, _ := newCommand(t, &mockAgent{invitationID: "abc123"})

		// accepting this payload would mint an invitation whose issuer
		// callback can never build an offer
		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: string(invitation.GoalCodeIssuance),
			CredentialData: map[string]interface{}{
				"credentialSubject": map[string]interface{}{"name": "Alice"},
			},
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, InvalidPayloadErrorCode, cmdErr.Code())
		require.ErrorContains(t, cmdErr, "issuer identity")

		entries, err := credentials.List()
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("invalid presentation payload", func(t *testing.T) {
		cmd, _, presentations := newCommand(t, &mockAgent{invitationID: "abc123"})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode:         string(invitation.GoalCodePresentation),
			PresentationData: []interface{}{map[string]interface{}{"name": "no id"}},
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, InvalidPayloadErrorCode, cmdErr.Code())

		entries, err := presentations.List()
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("malformed request body", func(t *testing.T) {
		cmd, _, _ := newCommand(t, &mockAgent{invitationID: "abc123"})

		var w bytes.Buffer

		cmdErr := cmd.CreateInvitation(&w, bytes.NewReader([]byte("not json")))
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, InvalidRequestErrorCode, cmdErr.Code())
	})

	t.Run("agent failure", func(t *testing.T) {
		cmd, _, _ := newCommand(t, &mockAgent{createErr: errors.New("mint failed")})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: string(invitation.GoalCodeIssuance),
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ExecuteError, cmdErr.Type())
		require.Equal(t, CreateInvitationErrorCode, cmdErr.Code())
	})

	t.Run("minted invitation fails transport decoding", func(t *testing.T) {
		cmd, credentials, _ := newCommand(t, &mockAgent{rawInvitation: "https://agent.example.com/no-envelope"})

		_, cmdErr := execCreateInvitation(t, cmd, CreateInvitationArgs{
			GoalCode: string(invitation.GoalCodeIssuance),
			CredentialData: map[string]interface{}{
				"issuerDid":         "did:example:issuer",
				"credentialSubject": map[string]interface{}{"name": "Alice"},
			},
		})
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ExecuteError, cmdErr.Type())
		require.ErrorContains(t, cmdErr, "missing out-of-band delimiter")

		// hard failure of the entire request: no partial state
		entries, err := credentials.List()
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func TestSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		agent := &mockAgent{invitationID: "abc123"}
		cmd, _, _ := newCommand(t, agent)

		reqBytes, err := json.Marshal(SendMessageArgs{
			TheirDID: "did:example:holder1",
			Message:  json.RawMessage(`{"hello":"world"}`),
		})
		require.NoError(t, err)

		var w bytes.Buffer

		cmdErr := cmd.SendMessage(&w, bytes.NewReader(reqBytes))
		require.Nil(t, cmdErr)
		require.Equal(t, "did:example:holder1", agent.sentTheirDID)
		require.JSONEq(t, `{"hello":"world"}`, string(agent.sentMessage))
	})

	t.Run("missing recipient", func(t *testing.T) {
		cmd, _, _ := newCommand(t, &mockAgent{})

		var w bytes.Buffer

		cmdErr := cmd.SendMessage(&w, bytes.NewReader([]byte(`{"message":{"hello":"world"}}`)))
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
	})

	t.Run("missing message", func(t *testing.T) {
		cmd, _, _ := newCommand(t, &mockAgent{})

		var w bytes.Buffer

		cmdErr := cmd.SendMessage(&w, bytes.NewReader([]byte(`{"theirDid":"did:example:holder1"}`)))
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
	})

	t.Run("send failure", func(t *testing.T) {
		cmd, _, _ := newCommand(t, &mockAgent{sendErr: errors.New("transport down")})

		var w bytes.Buffer

		cmdErr := cmd.SendMessage(&w,
			bytes.NewReader([]byte(`{"theirDid":"did:example:holder1","message":{"hello":"world"}}`)))
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ExecuteError, cmdErr.Type())
		require.Equal(t, SendMessageErrorCode, cmdErr.Code())
	})
}

func TestListCredentialData(t *testing.T) {
	cmd, credentials, _ := newCommand(t, &mockAgent{})

	require.NoError(t, credentials.Put("abc123", exchange.IssuancePayload{
		IssuerDID:         "did:example:issuer",
		CredentialSubject: map[string]interface{}{"name": "Alice"},
	}))

	var w bytes.Buffer

	cmdErr := cmd.ListCredentialData(&w, nil)
	require.Nil(t, cmdErr)

	response := &ListCredentialDataResponse{}
	require.NoError(t, json.Unmarshal(w.Bytes(), response))
	require.Len(t, response.Results, 1)
	require.Equal(t, "abc123", response.Results[0].InvitationID)
	require.Equal(t, "did:example:issuer", response.Results[0].Payload.IssuerDID)
}
