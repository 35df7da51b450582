/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package orchestrator bridges stored exchange payload data into the protocol
// engine's issuer and verifier callbacks, and hands completion notifications
// to the outgoing webhook.
package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/aries-framework-go/pkg/common/log"
	"github.com/hyperledger/aries-framework-go/pkg/doc/presexch"

	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/offer"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
)

// defaultIssuerName is displayed when the stored payload names no issuer.
const defaultIssuerName = "Credential Issuer"

var logger = log.New("exchange-orchestrator/orchestrator")

// Notifier dispatches a notification to webhook subscribers.
type Notifier interface {
	Notify(topic string, message []byte) error
}

// EventHandler reacts to one completion event. A non-nil error is logged and
// never propagates back into the protocol engine.
type EventHandler func(event exchange.Event) error

// Orchestrator owns the issuer and verifier callback contracts registered
// with the credential agent. It holds no per-call state beyond the two
// exchange data stores, so callbacks may fire concurrently for any number of
// invitations.
type Orchestrator struct {
	credentials   *store.Store[exchange.IssuancePayload]
	presentations *store.Store[exchange.PresentationPayload]
	notifier      Notifier
	eventHandlers []EventHandler
}

// Opt customizes the orchestrator.
type Opt func(*Orchestrator)

// WithEventHandlers appends handlers to the ordered completion event list.
func WithEventHandlers(handlers ...EventHandler) Opt {
	return func(o *Orchestrator) {
		o.eventHandlers = append(o.eventHandlers, handlers...)
	}
}

// New returns an orchestrator over the given exchange data stores.
func New(credentials *store.Store[exchange.IssuancePayload], presentations *store.Store[exchange.PresentationPayload],
	notifier Notifier, opts ...Opt) *Orchestrator {
	o := &Orchestrator{
		credentials:   credentials,
		presentations: presentations,
		notifier:      notifier,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// IssueCredentials is the issuer callback. It resolves the payload stored for
// the invitation and returns the offer the engine should extend to the
// holder. A nil offer with nil error means no payload is correlated with the
// invitation: a normal outcome the engine handles by declining the exchange.
//
// Stored payloads are not removed after issuance: invitations stay reusable,
// so the same invitation may issue the same payload to multiple holders.
func (o *Orchestrator) IssueCredentials(invitationID, holderDID string) (*offer.CredentialOffer, error) {
	payload, ok, err := o.credentials.Get(invitationID)
	if err != nil {
		return nil, fmt.Errorf("read credential data for invitation %q: %w", invitationID, err)
	}

	if !ok {
		logger.Infof("no credential data found for invitation [%s], holder [%s]", invitationID, holderDID)

		return nil, nil
	}

	issuer := resolveIssuer(&payload)

	credentialData, err := offer.BuildCredentialData(invitationID, holderDID, issuer,
		payload.CredentialSubject, payload.Options, payload.Styles)
	if err != nil {
		return nil, fmt.Errorf("build credential data for invitation %q: %w", invitationID, err)
	}

	credentialOffer, err := offer.CreateCredentialOffer(invitationID, holderDID, issuer,
		payload.CredentialSubject, payload.Options, payload.Styles)
	if err != nil {
		return nil, fmt.Errorf("create credential offer for invitation %q: %w", invitationID, err)
	}

	o.notifyCredentialIssued(credentialData)

	logger.Debugf("credential issuance completed for invitation [%s], holder [%s]", invitationID, holderDID)

	return credentialOffer, nil
}

// PresentationDefinition is the verifier callback. It wraps the stored input
// descriptors as a presentation definition, or reports absence via nil.
func (o *Orchestrator) PresentationDefinition(invitationID string) (*presexch.PresentationDefinition, error) {
	payload, ok, err := o.presentations.Get(invitationID)
	if err != nil {
		return nil, fmt.Errorf("read presentation data for invitation %q: %w", invitationID, err)
	}

	if !ok {
		logger.Infof("no presentation data found for invitation [%s]", invitationID)

		return nil, nil
	}

	return &presexch.PresentationDefinition{
		ID:               invitationID,
		InputDescriptors: payload.InputDescriptors,
	}, nil
}

// HandleEvent routes a completion event through the ordered handler list and
// pushes it to webhook subscribers. Failures are logged, never propagated:
// an error escaping here could destabilize the engine serving unrelated
// invitations.
func (o *Orchestrator) HandleEvent(event exchange.Event) {
	for i, handler := range o.eventHandlers {
		if err := handler(event); err != nil {
			logger.Warnf("event handler [%d] failed for topic [%s], invitation [%s]: %v",
				i, event.Topic, event.InvitationID, err)
		}
	}

	message, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("marshal event for topic [%s]: %v", event.Topic, err)

		return
	}

	if err := o.notifier.Notify(string(event.Topic), message); err != nil {
		logger.Warnf("notify topic [%s] for invitation [%s]: %v", event.Topic, event.InvitationID, err)
	}
}

func (o *Orchestrator) notifyCredentialIssued(credentialData *offer.CredentialData) {
	message, err := json.Marshal(credentialData)
	if err != nil {
		logger.Errorf("marshal credential data for invitation [%s]: %v", credentialData.InvitationID, err)

		return
	}

	// Best effort: a webhook failure must not stop the holder-facing exchange.
	if err := o.notifier.Notify(string(exchange.TopicCredentialIssued), message); err != nil {
		logger.Warnf("credential-issued webhook failed for invitation [%s]: %v", credentialData.InvitationID, err)
	}
}

// resolveIssuer resolves the issuer display attributes. Explicit issuer
// metadata wins over the legacy name DID field, which wins over the default
// display name.
func resolveIssuer(payload *exchange.IssuancePayload) *exchange.IssuerInfo {
	issuer := &exchange.IssuerInfo{
		ID:   payload.IssuerDID,
		Name: payload.NameDID,
	}

	if payload.Issuer != nil {
		if payload.Issuer.ID != "" {
			issuer.ID = payload.Issuer.ID
		}

		if payload.Issuer.Name != "" {
			issuer.Name = payload.Issuer.Name
		}

		issuer.Styles = payload.Issuer.Styles
	}

	if issuer.Name == "" {
		issuer.Name = defaultIssuerName
	}

	return issuer
}
