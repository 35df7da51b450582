/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package webnotifier fans completion notifications out to webhook
// subscribers over HTTP and connected WebSocket clients.
package webnotifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/pkg/common/log"

	"github.com/waci-exchange/orchestrator/pkg/controller/command"
	"github.com/waci-exchange/orchestrator/pkg/controller/rest"
)

const (
	notificationSendTimeout = 10 * time.Second

	emptyTopicErrMsg     = "cannot notify with an empty topic"
	emptyMessageErrMsg   = "cannot notify with an empty message"
	failedToCreateErrMsg = "failed to create topic message : %w"
)

var logger = log.New("exchange-orchestrator/webnotifier")

// WebNotifier is a dispatcher capable of notifying subscribers via HTTP and WebSocket.
type WebNotifier struct {
	notifiers []command.Notifier
	handlers  []rest.Handler
}

// New returns a new instance of a WebNotifier.
func New(wsPath string, webhookURLs []string) *WebNotifier {
	wsNotifier := NewWSNotifier(wsPath)

	return &WebNotifier{
		notifiers: []command.Notifier{
			NewHTTPNotifier(webhookURLs),
			wsNotifier,
		},
		handlers: wsNotifier.GetRESTHandlers(),
	}
}

// Notify sends the given message to all subscribers on the given topic.
// If multiple errors are encountered, then the first one is returned.
func (n *WebNotifier) Notify(topic string, message []byte) error {
	var allErrs error

	for _, notifier := range n.notifiers {
		err := notifier.Notify(topic, message)
		allErrs = appendError(allErrs, err)
	}

	return allErrs
}

// GetRESTHandlers returns all REST handlers provided by the notifier.
func (n *WebNotifier) GetRESTHandlers() []rest.Handler {
	return n.handlers
}

// PrepareTopicMessage wraps the message with a unique ID and its topic for
// delivery to subscribers.
func PrepareTopicMessage(topic string, message []byte) ([]byte, error) {
	topicMsg := struct {
		ID      string          `json:"id"`
		Topic   string          `json:"topic"`
		Message json.RawMessage `json:"message"`
	}{
		ID:      uuid.New().String(),
		Topic:   topic,
		Message: message,
	}

	return json.Marshal(topicMsg)
}

func appendError(errToAppendTo, err error) error {
	if errToAppendTo == nil {
		return err
	}

	if err == nil {
		return errToAppendTo
	}

	return fmt.Errorf("%v;%v", errToAppendTo, err)
}
