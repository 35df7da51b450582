/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"encoding/json"

	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/invitation"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
)

// CreateInvitationArgs model
//
// This is used to create an out-of-band invitation for a credential exchange
// flow, with optional payload data correlated to the minted invitation.
type CreateInvitationArgs struct {
	// GoalCode declares the flow the invitation begins.
	GoalCode string `json:"goalCode"`

	// CredentialData is the credential payload for an issuance invitation.
	CredentialData map[string]interface{} `json:"credentialData,omitempty"`

	// PresentationData is the input descriptor list for a presentation invitation.
	PresentationData []interface{} `json:"presentationData,omitempty"`
}

// CreateInvitationResponse model
//
// Represents the decoded envelope of the minted invitation.
type CreateInvitationResponse struct {
	Invitation *invitation.Envelope `json:"invitation"`
}

// SendMessageArgs model
//
// This is used to send a raw DIDComm message to a remote agent by DID.
type SendMessageArgs struct {
	// TheirDID is the recipient agent's DID.
	TheirDID string `json:"theirDid"`

	// Message is the raw message body to deliver.
	Message json.RawMessage `json:"message"`
}

// ListCredentialDataResponse model
//
// Lists the credential payloads currently correlated with invitations.
type ListCredentialDataResponse struct {
	Results []store.Entry[exchange.IssuancePayload] `json:"results"`
}
