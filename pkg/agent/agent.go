/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent declares the contracts between the exchange orchestrator and
// the credential agent runtime carrying the DIDComm protocols.
package agent

import (
	"encoding/json"

	"github.com/hyperledger/aries-framework-go/pkg/doc/presexch"

	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/offer"
)

// Agent mints out-of-band invitations and delivers messages to remote agents.
type Agent interface {
	// CreateInvitation mints a fresh out-of-band invitation for the given flow
	// and returns it as a shareable invitation URL.
	CreateInvitation(flow exchange.CredentialFlow) (string, error)

	// SendMessage delivers a raw DIDComm message to the agent owning theirDID.
	SendMessage(msg json.RawMessage, theirDID string) error
}

// Callbacks is the protocol-side contract the runtime invokes while driving
// exchanges: issuer and verifier data resolution plus completion events.
type Callbacks interface {
	// IssueCredentials resolves the credential offer for a connecting holder.
	// A nil offer with nil error means no data is correlated with the
	// invitation and the exchange should be declined.
	IssueCredentials(invitationID, holderDID string) (*offer.CredentialOffer, error)

	// PresentationDefinition resolves the presentation definition the holder
	// must satisfy, or nil when no data is correlated with the invitation.
	PresentationDefinition(invitationID string) (*presexch.PresentationDefinition, error)

	// HandleEvent receives completion-side notifications. It never fails:
	// event handling must not destabilize the protocol engine.
	HandleEvent(event exchange.Event)
}
