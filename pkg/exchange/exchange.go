/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange defines the domain model shared by the credential exchange
// orchestrator: the flow-specific invitation payloads, the issuer display
// metadata, and the completion events emitted by the protocol engine.
package exchange

import (
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/pkg/doc/presexch"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidPayload is returned when a flow payload does not match the closed
// shape expected for its flow.
var ErrInvalidPayload = errors.New("invalid exchange payload")

// CredentialFlow identifies which exchange flow an invitation begins.
type CredentialFlow int

const (
	// FlowIssuance is the credential issuance flow.
	FlowIssuance CredentialFlow = iota
	// FlowPresentation is the presentation request flow.
	FlowPresentation
)

// String returns a human readable flow name.
func (f CredentialFlow) String() string {
	switch f {
	case FlowIssuance:
		return "issuance"
	case FlowPresentation:
		return "presentation"
	default:
		return fmt.Sprintf("credentialflow(%d)", int(f))
	}
}

// IssuerInfo describes how the issuer should be displayed to the holder.
type IssuerInfo struct {
	ID     string                 `json:"id,omitempty"`
	Name   string                 `json:"name,omitempty"`
	Styles map[string]interface{} `json:"styles,omitempty"`
}

// IssuancePayload is the credential data a caller attaches to an issuance
// invitation. It is stored against the invitation ID and read back when the
// holder connects.
//
// Issuer takes precedence over the legacy NameDID field when resolving the
// issuer display attributes.
type IssuancePayload struct {
	IssuerDID         string                 `json:"issuerDid,omitempty"`
	NameDID           string                 `json:"nameDid,omitempty"`
	Issuer            *IssuerInfo            `json:"issuer,omitempty"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
	Options           map[string]interface{} `json:"options,omitempty"`
	Styles            map[string]interface{} `json:"styles,omitempty"`
}

// PresentationPayload is the presentation-request data a caller attaches to a
// presentation invitation: the input descriptors the holder must satisfy.
type PresentationPayload struct {
	InputDescriptors []*presexch.InputDescriptor `json:"inputDescriptors"`
}

// DecodeIssuancePayload validates a loosely typed issuance payload received at
// the service boundary and decodes it into its closed shape. An issuer identity
// is required up front: the offer builder cannot issue without one, so a
// payload lacking it would be accepted and then fail on every holder
// connection.
func DecodeIssuancePayload(raw map[string]interface{}) (*IssuancePayload, error) {
	payload := &IssuancePayload{}

	if err := decode(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: credential data: %s", ErrInvalidPayload, err.Error())
	}

	if len(payload.CredentialSubject) == 0 {
		return nil, fmt.Errorf("%w: credential data: credentialSubject is required", ErrInvalidPayload)
	}

	if payload.IssuerDID == "" && (payload.Issuer == nil || payload.Issuer.ID == "") {
		return nil, fmt.Errorf("%w: credential data: an issuer identity is required", ErrInvalidPayload)
	}

	return payload, nil
}

// DecodePresentationPayload validates a loosely typed list of input
// descriptors received at the service boundary.
func DecodePresentationPayload(raw []interface{}) (*PresentationPayload, error) {
	payload := &PresentationPayload{}

	if err := decode(map[string]interface{}{"inputDescriptors": raw}, payload); err != nil {
		return nil, fmt.Errorf("%w: presentation data: %s", ErrInvalidPayload, err.Error())
	}

	if len(payload.InputDescriptors) == 0 {
		return nil, fmt.Errorf("%w: presentation data: at least one input descriptor is required", ErrInvalidPayload)
	}

	for i, descriptor := range payload.InputDescriptors {
		if descriptor == nil || descriptor.ID == "" {
			return nil, fmt.Errorf("%w: presentation data: input descriptor [%d] has no id", ErrInvalidPayload, i)
		}
	}

	return payload, nil
}

func decode(input, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  output,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

// EventTopic labels a completion event emitted by the protocol engine.
type EventTopic string

const (
	// TopicCredentialIssued is published after the issuer callback resolves an offer.
	TopicCredentialIssued EventTopic = "credential-issued"
	// TopicAckCompleted is emitted when the holder acknowledges a finished exchange.
	TopicAckCompleted EventTopic = "ack-completed"
	// TopicPresentationVerified is emitted when a presentation has been verified.
	TopicPresentationVerified EventTopic = "presentation-verified"
	// TopicProblemReport is emitted when the remote agent reports a protocol problem.
	TopicProblemReport EventTopic = "problem-report"
)

// Event is a completion-side notification handed to the orchestrator by the
// protocol engine. Events are informational: handler failures are logged and
// never propagate back into the engine.
type Event struct {
	Topic        EventTopic             `json:"topic"`
	InvitationID string                 `json:"invitation_id,omitempty"`
	MessageID    string                 `json:"message_id,omitempty"`
	DID          string                 `json:"did,omitempty"`
	Code         string                 `json:"code,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}
