/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package invitation implements the out-of-band invitation envelope codec.
//
// An invitation travels as a URL with the JSON envelope appended after the
// "?oob=" marker, base64url encoded without padding. The envelope ID is the
// correlation key for all exchange data stores.
package invitation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Delimiter marks the start of the encoded envelope inside an invitation URL.
const Delimiter = "?oob="

// GoalCode tags an invitation with the flow it begins.
type GoalCode string

const (
	// GoalCodeIssuance starts a credential issuance flow.
	GoalCodeIssuance GoalCode = "streamlined-vc"
	// GoalCodePresentation starts a presentation request flow.
	GoalCodePresentation GoalCode = "streamlined-vp"
)

// Decode failure causes.
var (
	// ErrMissingDelimiter is reported when the transport string carries no envelope marker.
	ErrMissingDelimiter = errors.New("missing out-of-band delimiter")
	// ErrInvalidBase64 is reported when the envelope is not valid base64url.
	ErrInvalidBase64 = errors.New("invalid base64 envelope")
	// ErrInvalidJSON is reported when the decoded envelope is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON envelope")
)

// DecodeError reports a failed envelope decode. It carries the raw transport
// string for diagnostic logging and wraps one of the decode failure causes.
type DecodeError struct {
	Raw   string
	cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode invitation %q: %s", e.Raw, e.cause.Error())
}

// Unwrap returns the decode failure cause.
func (e *DecodeError) Unwrap() error {
	return e.cause
}

// Envelope is the self-describing invitation message shared with the remote
// holder. The ID is minted by the credential agent and is the sole correlation
// key for exchange payload data.
type Envelope struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Label    string   `json:"label,omitempty"`
	GoalCode GoalCode `json:"goal_code,omitempty"`
	From     string   `json:"from,omitempty"`
}

// Build constructs an envelope for the given invitation identity and goal code.
func Build(id string, goalCode GoalCode) *Envelope {
	return &Envelope{
		ID:       id,
		Type:     "https://didcomm.org/out-of-band/2.0/invitation",
		GoalCode: goalCode,
	}
}

// Encode renders the envelope as a shareable invitation URL: the endpoint
// followed by the delimiter and the base64url encoded JSON document.
func Encode(endpoint string, env *Envelope) (string, error) {
	envBytes, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	return endpoint + Delimiter + base64.RawURLEncoding.EncodeToString(envBytes), nil
}

// Decode extracts the envelope from an invitation URL. It fails with a
// *DecodeError wrapping ErrMissingDelimiter, ErrInvalidBase64 or
// ErrInvalidJSON depending on which stage of decoding broke.
func Decode(transport string) (*Envelope, error) {
	_, encoded, found := strings.Cut(transport, Delimiter)
	if !found {
		return nil, &DecodeError{Raw: transport, cause: ErrMissingDelimiter}
	}

	envBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Raw: transport, cause: fmt.Errorf("%w: %s", ErrInvalidBase64, err.Error())}
	}

	env := &Envelope{}
	if err := json.Unmarshal(envBytes, env); err != nil {
		return nil, &DecodeError{Raw: transport, cause: fmt.Errorf("%w: %s", ErrInvalidJSON, err.Error())}
	}

	return env, nil
}
