/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package offer builds the two representations of a credential issuance: the
// webhook-facing credential data and the protocol-engine-facing offer. Both
// are assembled from identical inputs and never diverge in the data they
// carry, only in shape.
package offer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/waci-exchange/orchestrator/pkg/exchange"
)

// CredentialData is the webhook-facing representation of an issued
// credential, published to outgoing webhook subscribers.
type CredentialData struct {
	InvitationID      string                 `json:"invitationId"`
	HolderDID         string                 `json:"holderDid"`
	Issuer            exchange.IssuerInfo    `json:"issuer"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
	Options           map[string]interface{} `json:"options,omitempty"`
	Styles            map[string]interface{} `json:"styles,omitempty"`
}

// CredentialOffer is the protocol-engine-facing offer returned from the
// issuer callback. It is transient: assembled per issuance attempt from the
// stored payload plus the connecting holder's DID, never persisted.
type CredentialOffer struct {
	ID                string                 `json:"id"`
	InvitationID      string                 `json:"invitationId"`
	HolderDID         string                 `json:"holderDid"`
	Issuer            exchange.IssuerInfo    `json:"issuer"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
	Options           map[string]interface{} `json:"options,omitempty"`
	Styles            map[string]interface{} `json:"styles,omitempty"`
}

// BuildCredentialData produces the webhook representation of the issuance.
func BuildCredentialData(invitationID, holderDID string, issuer *exchange.IssuerInfo,
	subject, options, styles map[string]interface{}) (*CredentialData, error) {
	if err := validate(invitationID, holderDID, issuer, subject); err != nil {
		return nil, err
	}

	return &CredentialData{
		InvitationID:      invitationID,
		HolderDID:         holderDID,
		Issuer:            *issuer,
		CredentialSubject: subject,
		Options:           options,
		Styles:            styles,
	}, nil
}

// CreateCredentialOffer produces the protocol-engine representation of the
// issuance, bound to the connecting holder's DID.
func CreateCredentialOffer(invitationID, holderDID string, issuer *exchange.IssuerInfo,
	subject, options, styles map[string]interface{}) (*CredentialOffer, error) {
	if err := validate(invitationID, holderDID, issuer, subject); err != nil {
		return nil, err
	}

	return &CredentialOffer{
		ID:                uuid.New().String(),
		InvitationID:      invitationID,
		HolderDID:         holderDID,
		Issuer:            *issuer,
		CredentialSubject: subject,
		Options:           options,
		Styles:            styles,
	}, nil
}

func validate(invitationID, holderDID string, issuer *exchange.IssuerInfo, subject map[string]interface{}) error {
	if invitationID == "" {
		return fmt.Errorf("%w: invitation ID is required", exchange.ErrInvalidPayload)
	}

	if holderDID == "" {
		return fmt.Errorf("%w: holder DID is required", exchange.ErrInvalidPayload)
	}

	if issuer == nil || issuer.ID == "" {
		return fmt.Errorf("%w: issuer ID is required", exchange.ErrInvalidPayload)
	}

	if len(subject) == 0 {
		return fmt.Errorf("%w: credential subject is required", exchange.ErrInvalidPayload)
	}

	return nil
}
