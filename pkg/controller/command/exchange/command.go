/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange is the controller command for credential exchange
// invitations: minting them, correlating payload data with them, and sending
// direct messages to remote agents.
package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/pkg/common/log"

	"github.com/waci-exchange/orchestrator/pkg/agent"
	"github.com/waci-exchange/orchestrator/pkg/controller/command"
	"github.com/waci-exchange/orchestrator/pkg/controller/internal/cmdutil"
	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/invitation"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
	"github.com/waci-exchange/orchestrator/pkg/internal/logutil"
)

const (
	// InvalidRequestErrorCode is typically a code for validation errors
	// for invalid exchange controller requests.
	InvalidRequestErrorCode = command.Code(iota + command.Exchange)
	// UnsupportedGoalCodeErrorCode is for create invitation requests naming an unknown goal code.
	UnsupportedGoalCodeErrorCode
	// InvalidPayloadErrorCode is for flow payloads that fail shape validation.
	InvalidPayloadErrorCode
	// CreateInvitationErrorCode is for failures in create invitation command.
	CreateInvitationErrorCode
	// SendMessageErrorCode is for failures in send message command.
	SendMessageErrorCode
	// ListCredentialDataErrorCode is for failures in list credential data command.
	ListCredentialDataErrorCode
)

const (
	// command name
	commandName = "exchange"

	createInvitation   = "CreateInvitation"
	sendMessage        = "SendMessage"
	listCredentialData = "ListCredentialData"

	// error messages
	errEmptyTheirDID = "theirDid was not provided"
	errEmptyMessage  = "message was not provided"

	// log constants
	successString = "success"
)

// ErrUnsupportedGoalCode is returned when a create invitation request names a
// goal code outside the supported flows.
var ErrUnsupportedGoalCode = errors.New("unsupported goal code")

var logger = log.New("exchange-orchestrator/controller/exchange")

// Command is controller command for credential exchange.
type Command struct {
	agent         agent.Agent
	credentials   *store.Store[exchange.IssuancePayload]
	presentations *store.Store[exchange.PresentationPayload]
}

// New returns new exchange controller command instance.
func New(a agent.Agent, credentials *store.Store[exchange.IssuancePayload],
	presentations *store.Store[exchange.PresentationPayload]) *Command {
	return &Command{
		agent:         a,
		credentials:   credentials,
		presentations: presentations,
	}
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(commandName, createInvitation, c.CreateInvitation),
		cmdutil.NewCommandHandler(commandName, sendMessage, c.SendMessage),
		cmdutil.NewCommandHandler(commandName, listCredentialData, c.ListCredentialData),
	}
}

// CreateInvitation mints an out-of-band invitation for the requested flow and
// correlates any supplied payload data with it before responding, so the
// payload is retrievable by the time the invitation reaches a holder.
func (c *Command) CreateInvitation(rw io.Writer, req io.Reader) command.Error { // nolint: funlen
	var args CreateInvitationArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		logutil.LogInfo(logger, commandName, createInvitation, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	flow, err := flowForGoalCode(args.GoalCode)
	if err != nil {
		logutil.LogInfo(logger, commandName, createInvitation, err.Error())

		return command.NewValidationError(UnsupportedGoalCodeErrorCode, err)
	}

	// Payloads are validated before the invitation is minted: a rejected
	// payload must leave no invitation behind.
	var (
		credentialData   *exchange.IssuancePayload
		presentationData *exchange.PresentationPayload
	)

	if flow == exchange.FlowIssuance && args.CredentialData != nil {
		credentialData, err = exchange.DecodeIssuancePayload(args.CredentialData)
		if err != nil {
			logutil.LogInfo(logger, commandName, createInvitation, err.Error())

			return command.NewValidationError(InvalidPayloadErrorCode, err)
		}
	}

	if flow == exchange.FlowPresentation && args.PresentationData != nil {
		presentationData, err = exchange.DecodePresentationPayload(args.PresentationData)
		if err != nil {
			logutil.LogInfo(logger, commandName, createInvitation, err.Error())

			return command.NewValidationError(InvalidPayloadErrorCode, err)
		}
	}

	invitationURL, err := c.agent.CreateInvitation(flow)
	if err != nil {
		logutil.LogError(logger, commandName, createInvitation, err.Error())

		return command.NewExecuteError(CreateInvitationErrorCode, err)
	}

	env, err := invitation.Decode(invitationURL)
	if err != nil {
		// A minted invitation that fails its own transport decoding is an
		// internal inconsistency, not caller input.
		logutil.LogError(logger, commandName, createInvitation, err.Error())

		return command.NewExecuteError(CreateInvitationErrorCode, err)
	}

	if env.ID != "" {
		if err := c.storePayload(env.ID, credentialData, presentationData); err != nil {
			logutil.LogError(logger, commandName, createInvitation, err.Error())

			return command.NewExecuteError(CreateInvitationErrorCode, err)
		}
	}

	command.WriteNillableResponse(rw, &CreateInvitationResponse{Invitation: env}, logger)

	logutil.LogDebug(logger, commandName, createInvitation, successString,
		logutil.CreateKeyValueString("invitationID", env.ID))

	return nil
}

// SendMessage forwards a raw message body to the agent owning the given DID.
// Fire and forget: a successful send returns no payload.
func (c *Command) SendMessage(rw io.Writer, req io.Reader) command.Error {
	var args SendMessageArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		logutil.LogInfo(logger, commandName, sendMessage, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.TheirDID == "" {
		logutil.LogDebug(logger, commandName, sendMessage, errEmptyTheirDID)

		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyTheirDID))
	}

	if len(args.Message) == 0 {
		logutil.LogDebug(logger, commandName, sendMessage, errEmptyMessage)

		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyMessage))
	}

	if err := c.agent.SendMessage(args.Message, args.TheirDID); err != nil {
		logutil.LogError(logger, commandName, sendMessage, err.Error(),
			logutil.CreateKeyValueString("theirDID", args.TheirDID))

		return command.NewExecuteError(SendMessageErrorCode, err)
	}

	command.WriteNillableResponse(rw, nil, logger)

	logutil.LogDebug(logger, commandName, sendMessage, successString,
		logutil.CreateKeyValueString("theirDID", args.TheirDID))

	return nil
}

// ListCredentialData enumerates the credential payloads currently correlated
// with invitations.
func (c *Command) ListCredentialData(rw io.Writer, req io.Reader) command.Error {
	entries, err := c.credentials.List()
	if err != nil {
		logutil.LogError(logger, commandName, listCredentialData, err.Error())

		return command.NewExecuteError(ListCredentialDataErrorCode, err)
	}

	command.WriteNillableResponse(rw, &ListCredentialDataResponse{Results: entries}, logger)

	logutil.LogDebug(logger, commandName, listCredentialData, successString)

	return nil
}

func (c *Command) storePayload(invitationID string, credentialData *exchange.IssuancePayload,
	presentationData *exchange.PresentationPayload) error {
	if credentialData != nil {
		if err := c.credentials.Put(invitationID, *credentialData); err != nil {
			return fmt.Errorf("store credential data: %w", err)
		}
	}

	if presentationData != nil {
		if err := c.presentations.Put(invitationID, *presentationData); err != nil {
			return fmt.Errorf("store presentation data: %w", err)
		}
	}

	return nil
}

func flowForGoalCode(goalCode string) (exchange.CredentialFlow, error) {
	switch invitation.GoalCode(goalCode) {
	case invitation.GoalCodeIssuance:
		return exchange.FlowIssuance, nil
	case invitation.GoalCodePresentation:
		return exchange.FlowPresentation, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedGoalCode, goalCode)
	}
}
