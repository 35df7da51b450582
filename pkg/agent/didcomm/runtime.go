/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package didcomm implements the credential agent runtime on the Aries
// framework: out-of-band invitation minting, message delivery, and the
// issue-credential and present-proof action loops that drive exchanges from
// the registered callbacks.
package didcomm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	issuecredentialclient "github.com/hyperledger/aries-framework-go/pkg/client/issuecredential"
	msgclient "github.com/hyperledger/aries-framework-go/pkg/client/messaging"
	"github.com/hyperledger/aries-framework-go/pkg/client/outofbandv2"
	presentproofclient "github.com/hyperledger/aries-framework-go/pkg/client/presentproof"
	"github.com/hyperledger/aries-framework-go/pkg/common/log"
	"github.com/hyperledger/aries-framework-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-framework-go/pkg/didcomm/protocol/decorator"
	issuecredentialsvc "github.com/hyperledger/aries-framework-go/pkg/didcomm/protocol/issuecredential"
	presentproofsvc "github.com/hyperledger/aries-framework-go/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-framework-go/pkg/framework/context"

	"github.com/waci-exchange/orchestrator/pkg/agent"
	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/invitation"
)

const (
	issuanceGoal     = "To issue a credential"
	presentationGoal = "To request a presentation"

	ldJSONMimeType     = "application/ld+json"
	peDefinitionFormat = "dif/presentation-exchange/definitions@v1.0"

	stateNameDone      = "done"
	stateNameAbandoned = "abandoned"

	eventBufferSize = 10
)

var logger = log.New("exchange-orchestrator/didcomm")

// errNoExchangeData declines an exchange whose invitation has no payload.
var errNoExchangeData = errors.New("no exchange data correlated with invitation")

// protocolClient is the per-protocol surface the runtime drives: event
// registration from the embedded service event API.
type protocolClient interface {
	RegisterActionEvent(ch chan<- service.DIDCommAction) error
	UnregisterActionEvent(ch chan<- service.DIDCommAction) error
	RegisterMsgEvent(ch chan<- service.StateMsg) error
	UnregisterMsgEvent(ch chan<- service.StateMsg) error
}

// Runtime is the Aries-backed credential agent runtime. Construct it with
// New, register the protocol loops with Start, and release them with Stop.
type Runtime struct {
	oob       *outofbandv2.Client
	issuance  protocolClient
	presproof protocolClient
	messenger *msgclient.Client
	callbacks agent.Callbacks

	serviceEndpoint string
	label           string
	publicDID       string

	issuanceActions     chan service.DIDCommAction
	presentationActions chan service.DIDCommAction
	issuanceStates      chan service.StateMsg
	presentationStates  chan service.StateMsg
}

// Opt customizes the runtime.
type Opt func(*Runtime)

// WithLabel sets the label stamped on minted invitations.
func WithLabel(label string) Opt {
	return func(r *Runtime) {
		r.label = label
	}
}

// WithPublicDID sets the DID advertised as the inviter.
func WithPublicDID(did string) Opt {
	return func(r *Runtime) {
		r.publicDID = did
	}
}

// WithServiceEndpoint overrides the endpoint minted into invitation URLs.
func WithServiceEndpoint(endpoint string) Opt {
	return func(r *Runtime) {
		r.serviceEndpoint = endpoint
	}
}

// New builds a runtime over the framework context. The message handler and
// notifier feed the generic messaging client used for direct sends.
func New(ctx *context.Provider, callbacks agent.Callbacks, msgHandler msgclient.MessageHandler,
	notifier msgclient.Notifier, opts ...Opt) (*Runtime, error) {
	oobClient, err := outofbandv2.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create out-of-band client: %w", err)
	}

	issuanceClient, err := issuecredentialclient.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create issue-credential client: %w", err)
	}

	presentProofClient, err := presentproofclient.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create present-proof client: %w", err)
	}

	messengerClient, err := msgclient.New(ctx, msgHandler, notifier)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}

	r := &Runtime{
		oob:             oobClient,
		issuance:        issuanceClient,
		presproof:       presentProofClient,
		messenger:       messengerClient,
		callbacks:       callbacks,
		serviceEndpoint: ctx.ServiceEndpoint(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// CreateInvitation mints an out-of-band invitation bound to the given flow's
// goal code and renders it as a shareable invitation URL.
func (r *Runtime) CreateInvitation(flow exchange.CredentialFlow) (string, error) {
	var (
		goal     string
		goalCode invitation.GoalCode
	)

	switch flow {
	case exchange.FlowIssuance:
		goal, goalCode = issuanceGoal, invitation.GoalCodeIssuance
	case exchange.FlowPresentation:
		goal, goalCode = presentationGoal, invitation.GoalCodePresentation
	default:
		return "", fmt.Errorf("unsupported credential flow %q", flow)
	}

	inv, err := r.oob.CreateInvitation(
		outofbandv2.WithGoal(goal, string(goalCode)),
		outofbandv2.WithLabel(r.label),
		outofbandv2.WithFrom(r.publicDID),
	)
	if err != nil {
		return "", fmt.Errorf("create out-of-band invitation: %w", err)
	}

	env := invitation.Build(inv.ID, goalCode)
	env.Label = inv.Label
	env.From = inv.From

	url, err := invitation.Encode(r.serviceEndpoint, env)
	if err != nil {
		return "", fmt.Errorf("encode invitation %q: %w", inv.ID, err)
	}

	logger.Debugf("minted %s invitation [%s]", flow, inv.ID)

	return url, nil
}

// SendMessage delivers a raw DIDComm message to the agent owning theirDID.
// Fire and forget: any reply arriving over the message service is discarded.
func (r *Runtime) SendMessage(msg json.RawMessage, theirDID string) error {
	if _, err := r.messenger.Send(msg, msgclient.SendByTheirDID(theirDID)); err != nil {
		return fmt.Errorf("send message to %q: %w", theirDID, err)
	}

	return nil
}

// Start registers the protocol event channels and launches the action and
// state loops. Call Stop to unregister them.
func (r *Runtime) Start() error {
	r.issuanceActions = make(chan service.DIDCommAction, eventBufferSize)
	r.presentationActions = make(chan service.DIDCommAction, eventBufferSize)
	r.issuanceStates = make(chan service.StateMsg, eventBufferSize)
	r.presentationStates = make(chan service.StateMsg, eventBufferSize)

	if err := r.issuance.RegisterActionEvent(r.issuanceActions); err != nil {
		return fmt.Errorf("register issue-credential actions: %w", err)
	}

	if err := r.presproof.RegisterActionEvent(r.presentationActions); err != nil {
		return fmt.Errorf("register present-proof actions: %w", err)
	}

	if err := r.issuance.RegisterMsgEvent(r.issuanceStates); err != nil {
		return fmt.Errorf("register issue-credential state events: %w", err)
	}

	if err := r.presproof.RegisterMsgEvent(r.presentationStates); err != nil {
		return fmt.Errorf("register present-proof state events: %w", err)
	}

	go r.issuanceActionLoop(r.issuanceActions)
	go r.presentationActionLoop(r.presentationActions)
	go r.stateLoop(r.issuanceStates, exchange.TopicAckCompleted)
	go r.stateLoop(r.presentationStates, exchange.TopicPresentationVerified)

	return nil
}

// Stop unregisters the protocol event channels and closes them. Unregistration
// only stops the services from delivering further events; closing is what lets
// the action and state loops drain and exit.
func (r *Runtime) Stop() error {
	if err := r.issuance.UnregisterActionEvent(r.issuanceActions); err != nil {
		return fmt.Errorf("unregister issue-credential actions: %w", err)
	}

	if err := r.presproof.UnregisterActionEvent(r.presentationActions); err != nil {
		return fmt.Errorf("unregister present-proof actions: %w", err)
	}

	if err := r.issuance.UnregisterMsgEvent(r.issuanceStates); err != nil {
		return fmt.Errorf("unregister issue-credential state events: %w", err)
	}

	if err := r.presproof.UnregisterMsgEvent(r.presentationStates); err != nil {
		return fmt.Errorf("unregister present-proof state events: %w", err)
	}

	close(r.issuanceActions)
	close(r.presentationActions)
	close(r.issuanceStates)
	close(r.presentationStates)

	return nil
}

func (r *Runtime) issuanceActionLoop(actions <-chan service.DIDCommAction) {
	for action := range actions {
		switch action.Message.Type() {
		case issuecredentialsvc.ProposeCredentialMsgTypeV2, issuecredentialsvc.RequestCredentialMsgTypeV2:
			r.handleIssuanceAction(action)
		default:
			action.Stop(fmt.Errorf("unsupported issue-credential message type %q", action.Message.Type()))
		}
	}
}

// handleIssuanceAction resolves the credential offer for the connecting
// holder and continues the protocol with it, as an offer for a proposal or
// the issued credential for a direct request.
func (r *Runtime) handleIssuanceAction(action service.DIDCommAction) {
	invitationID := action.Message.ParentThreadID()
	holderDID := theirDID(action.Properties)

	credentialOffer, err := r.callbacks.IssueCredentials(invitationID, holderDID)
	if err != nil {
		logger.Errorf("resolve credential offer for invitation [%s]: %v", invitationID, err)
		action.Stop(fmt.Errorf("resolve credential offer: %w", err))

		return
	}

	if credentialOffer == nil {
		action.Stop(errNoExchangeData)

		return
	}

	attachmentID := uuid.New().String()
	formats := []issuecredentialsvc.Format{{AttachID: attachmentID, Format: ldJSONMimeType}}
	attachments := []decorator.GenericAttachment{{
		ID:   attachmentID,
		Data: decorator.AttachmentData{JSON: credentialOffer},
	}}

	if action.Message.Type() == issuecredentialsvc.ProposeCredentialMsgTypeV2 {
		action.Continue(issuecredentialsvc.WithOfferCredential(&issuecredentialsvc.OfferCredentialParams{
			Type:        issuecredentialsvc.OfferCredentialMsgTypeV2,
			Formats:     formats,
			Attachments: attachments,
		}))

		return
	}

	action.Continue(issuecredentialsvc.WithIssueCredential(&issuecredentialsvc.IssueCredentialParams{
		Type:        issuecredentialsvc.IssueCredentialMsgTypeV2,
		Formats:     formats,
		Attachments: attachments,
	}))
}

func (r *Runtime) presentationActionLoop(actions <-chan service.DIDCommAction) {
	for action := range actions {
		switch action.Message.Type() {
		case presentproofsvc.ProposePresentationMsgTypeV2:
			r.handlePresentationAction(action)
		case presentproofsvc.PresentationMsgTypeV2:
			// Received presentations are accepted here and surfaced to the
			// orchestrator through the state loop once verified.
			action.Continue(&service.Empty{})
		default:
			action.Stop(fmt.Errorf("unsupported present-proof message type %q", action.Message.Type()))
		}
	}
}

// handlePresentationAction answers a holder's proposal with the presentation
// definition stored against the invitation.
func (r *Runtime) handlePresentationAction(action service.DIDCommAction) {
	invitationID := action.Message.ParentThreadID()

	definition, err := r.callbacks.PresentationDefinition(invitationID)
	if err != nil {
		logger.Errorf("resolve presentation definition for invitation [%s]: %v", invitationID, err)
		action.Stop(fmt.Errorf("resolve presentation definition: %w", err))

		return
	}

	if definition == nil {
		action.Stop(errNoExchangeData)

		return
	}

	attachmentID := uuid.New().String()

	action.Continue(presentproofsvc.WithRequestPresentation(&presentproofsvc.RequestPresentationParams{
		WillConfirm: true,
		Formats:     []presentproofsvc.Format{{AttachID: attachmentID, Format: peDefinitionFormat}},
		Attachments: []decorator.GenericAttachment{{
			ID: attachmentID,
			Data: decorator.AttachmentData{
				JSON: map[string]interface{}{"presentation_definition": definition},
			},
		}},
	}))
}

// stateLoop translates post-state protocol transitions into completion
// events: done maps to the protocol's completion topic, abandonment to a
// problem report.
func (r *Runtime) stateLoop(states <-chan service.StateMsg, doneTopic exchange.EventTopic) {
	for state := range states {
		if state.Type != service.PostState || state.Msg == nil {
			continue
		}

		var topic exchange.EventTopic

		switch state.StateID {
		case stateNameDone:
			topic = doneTopic
		case stateNameAbandoned:
			topic = exchange.TopicProblemReport
		default:
			continue
		}

		event := exchange.Event{
			Topic:        topic,
			InvitationID: state.Msg.ParentThreadID(),
			MessageID:    state.Msg.ID(),
			DID:          theirDID(state.Properties),
		}

		if state.Properties != nil {
			event.Properties = state.Properties.All()

			if err, ok := event.Properties["error"].(error); ok && err != nil {
				event.Code = err.Error()
			}
		}

		r.callbacks.HandleEvent(event)
	}
}

// theirDID extracts the remote agent's DID from event properties when the
// protocol exposes it.
func theirDID(props service.EventProperties) string {
	type didProperties interface {
		TheirDID() string
	}

	if p, ok := props.(didProperties); ok {
		return p.TheirDID()
	}

	return ""
}
