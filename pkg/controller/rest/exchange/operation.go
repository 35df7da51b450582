/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange exposes the credential exchange controller command as
// REST endpoints.
package exchange

import (
	"net/http"

	"github.com/waci-exchange/orchestrator/pkg/agent"
	"github.com/waci-exchange/orchestrator/pkg/controller/command/exchange"
	"github.com/waci-exchange/orchestrator/pkg/controller/internal/cmdutil"
	"github.com/waci-exchange/orchestrator/pkg/controller/rest"
	exchangedata "github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
)

const (
	operationID       = "/exchange"
	createInvitation  = operationID + "/create-invitation"
	sendMessage       = operationID + "/send-message"
	issuedCredentials = operationID + "/issued-credentials"
)

// Operation is controller REST service controller for credential exchange.
type Operation struct {
	command  *exchange.Command
	handlers []rest.Handler
}

// New returns new exchange rest controller instance.
func New(a agent.Agent, credentials *store.Store[exchangedata.IssuancePayload],
	presentations *store.Store[exchangedata.PresentationPayload]) *Operation {
	o := &Operation{command: exchange.New(a, credentials, presentations)}
	o.registerHandler()

	return o
}

// GetRESTHandlers get all controller API handler available for this service.
func (c *Operation) GetRESTHandlers() []rest.Handler {
	return c.handlers
}

// registerHandler register handlers to be exposed from this service as REST API endpoints.
func (c *Operation) registerHandler() {
	c.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(createInvitation, http.MethodPost, c.CreateInvitation),
		cmdutil.NewHTTPHandler(sendMessage, http.MethodPost, c.SendMessage),
		cmdutil.NewHTTPHandler(issuedCredentials, http.MethodGet, c.IssuedCredentials),
	}
}

// CreateInvitation swagger:route POST /exchange/create-invitation exchange exchangeCreateInvitation
//
// Creates an out-of-band invitation and correlates the supplied payload data with it.
//
// Responses:
//    default: genericError
//        200: exchangeCreateInvitationResponse
func (c *Operation) CreateInvitation(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.CreateInvitation, rw, req.Body)
}

// SendMessage swagger:route POST /exchange/send-message exchange exchangeSendMessage
//
// Sends a raw message to a remote agent by DID.
//
// Responses:
//    default: genericError
//        200: exchangeSendMessageResponse
func (c *Operation) SendMessage(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.SendMessage, rw, req.Body)
}

// IssuedCredentials swagger:route GET /exchange/issued-credentials exchange exchangeIssuedCredentials
//
// Lists the credential payloads currently correlated with invitations.
//
// Responses:
//    default: genericError
//        200: exchangeIssuedCredentialsResponse
func (c *Operation) IssuedCredentials(rw http.ResponseWriter, _ *http.Request) {
	rest.Execute(c.command.ListCredentialData, rw, nil)
}
