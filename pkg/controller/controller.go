/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package controller assembles the credential exchange service: the typed
// exchange data stores, the orchestrator, the agent runtime and the REST
// operations, all sharing one construction path.
package controller

import (
	"fmt"

	msgclient "github.com/hyperledger/aries-framework-go/pkg/client/messaging"
	"github.com/hyperledger/aries-framework-go/pkg/framework/context"

	"github.com/waci-exchange/orchestrator/pkg/agent/didcomm"
	"github.com/waci-exchange/orchestrator/pkg/controller/command"
	"github.com/waci-exchange/orchestrator/pkg/controller/rest"
	exchangerest "github.com/waci-exchange/orchestrator/pkg/controller/rest/exchange"
	"github.com/waci-exchange/orchestrator/pkg/controller/webnotifier"
	"github.com/waci-exchange/orchestrator/pkg/exchange"
	"github.com/waci-exchange/orchestrator/pkg/exchange/orchestrator"
	"github.com/waci-exchange/orchestrator/pkg/exchange/store"
)

const (
	wsPath = "/ws"

	credentialStoreName   = "credentialexchange"
	presentationStoreName = "presentationexchange"
)

type allOpts struct {
	webhookURLs     []string
	defaultLabel    string
	publicDID       string
	serviceEndpoint string
	msgHandler      msgclient.MessageHandler
	notifier        command.Notifier
}

// Opt represents a controller option.
type Opt func(opts *allOpts)

// WithWebhookURLs is an option for setting up a webhook dispatcher which will notify clients of events.
func WithWebhookURLs(webhookURLs ...string) Opt {
	return func(opts *allOpts) {
		opts.webhookURLs = webhookURLs
	}
}

// WithNotifier is an option for setting up a notifier which will notify clients of events.
func WithNotifier(notifier command.Notifier) Opt {
	return func(opts *allOpts) {
		opts.notifier = notifier
	}
}

// WithDefaultLabel is an option allowing for the defaultLabel to be set.
func WithDefaultLabel(defaultLabel string) Opt {
	return func(opts *allOpts) {
		opts.defaultLabel = defaultLabel
	}
}

// WithPublicDID is an option for setting the DID advertised on minted invitations.
func WithPublicDID(did string) Opt {
	return func(opts *allOpts) {
		opts.publicDID = did
	}
}

// WithServiceEndpoint is an option overriding the endpoint minted into invitation URLs.
func WithServiceEndpoint(endpoint string) Opt {
	return func(opts *allOpts) {
		opts.serviceEndpoint = endpoint
	}
}

// WithMessageHandler is an option allowing for the message handler to be set.
func WithMessageHandler(handler msgclient.MessageHandler) Opt {
	return func(opts *allOpts) {
		opts.msgHandler = handler
	}
}

// Controller owns the assembled service. Start registers the agent runtime's
// protocol loops; Stop releases them.
type Controller struct {
	handlers []rest.Handler
	runtime  *didcomm.Runtime
}

// New assembles the credential exchange service on the framework context.
//
// The typed stores are opened once and shared between the controller command
// (the writer) and the orchestrator (the reader), so both observe the same
// cached state.
func New(ctx *context.Provider, opts ...Opt) (*Controller, error) {
	ctrlOpts := &allOpts{}

	for _, opt := range opts {
		opt(ctrlOpts)
	}

	notifier := ctrlOpts.notifier

	var notifierHandlers []rest.Handler

	if notifier == nil {
		wn := webnotifier.New(wsPath, ctrlOpts.webhookURLs)
		notifier = wn
		notifierHandlers = wn.GetRESTHandlers()
	}

	credentials, err := store.Open[exchange.IssuancePayload](ctx, credentialStoreName)
	if err != nil {
		return nil, fmt.Errorf("open credential exchange store: %w", err)
	}

	presentations, err := store.Open[exchange.PresentationPayload](ctx, presentationStoreName)
	if err != nil {
		return nil, fmt.Errorf("open presentation exchange store: %w", err)
	}

	orch := orchestrator.New(credentials, presentations, notifier)

	runtimeOpts := []didcomm.Opt{didcomm.WithLabel(ctrlOpts.defaultLabel)}

	if ctrlOpts.publicDID != "" {
		runtimeOpts = append(runtimeOpts, didcomm.WithPublicDID(ctrlOpts.publicDID))
	}

	if ctrlOpts.serviceEndpoint != "" {
		runtimeOpts = append(runtimeOpts, didcomm.WithServiceEndpoint(ctrlOpts.serviceEndpoint))
	}

	runtime, err := didcomm.New(ctx, orch, ctrlOpts.msgHandler, notifier, runtimeOpts...)
	if err != nil {
		return nil, fmt.Errorf("create agent runtime: %w", err)
	}

	exchangeOp := exchangerest.New(runtime, credentials, presentations)

	var handlers []rest.Handler
	handlers = append(handlers, exchangeOp.GetRESTHandlers()...)
	handlers = append(handlers, notifierHandlers...)

	return &Controller{handlers: handlers, runtime: runtime}, nil
}

// RESTHandlers returns all REST handlers provided by the controller.
func (c *Controller) RESTHandlers() []rest.Handler {
	return c.handlers
}

// Start registers the runtime's protocol event loops.
func (c *Controller) Start() error {
	return c.runtime.Start()
}

// Stop unregisters the runtime's protocol event loops.
func (c *Controller) Stop() error {
	return c.runtime.Stop()
}
