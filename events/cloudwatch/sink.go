// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package cloudwatch publishes security events to an Amazon EventBridge
// (CloudWatch Events) bus.
package cloudwatch

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents/types"
	"github.com/hashicorp/go-safearchive/events"
	"github.com/pkg/errors"
)

// DefaultSource is the event source used if none is configured.
const DefaultSource = "hashicorp.safearchive"

// PutEventsAPI is the part of the cloudwatchevents client used by the [Sink].
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *cloudwatchevents.PutEventsInput, optFns ...func(*cloudwatchevents.Options)) (*cloudwatchevents.PutEventsOutput, error)
}

// errorLogger receives publishing failures, *slog.Logger satisfies it.
type errorLogger interface {
	Error(msg string, keysAndValues ...interface{})
}

// Sink publishes [events.Event] values with PutEvents. Publishing is
// synchronous and failures are logged, never returned to the engine.
type Sink struct {
	client   PutEventsAPI
	eventBus string
	source   string
	logger   errorLogger
}

// Option adjusts a [Sink].
type Option func(*Sink)

// WithSource sets the event source.
func WithSource(source string) Option {
	return func(s *Sink) {
		if len(source) > 0 {
			s.source = source
		}
	}
}

// WithErrorLogger sets the logger for publishing failures.
func WithErrorLogger(l errorLogger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

// NewSink creates a sink publishing to eventBus. An empty eventBus
// publishes to the default bus of the account.
func NewSink(client PutEventsAPI, eventBus string, opts ...Option) *Sink {
	s := &Sink{
		client:   client,
		eventBus: eventBus,
		source:   DefaultSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit publishes ev.
func (s *Sink) Emit(ctx context.Context, ev events.Event) {
	if err := s.publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Error("cannot publish security event", "event", ev.Name, "error", err)
	}
}

func (s *Sink) publish(ctx context.Context, ev events.Event) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "cannot marshal event")
	}

	entry := types.PutEventsRequestEntry{
		Source:     aws.String(s.source),
		DetailType: aws.String(ev.Name),
		Detail:     aws.String(string(detail)),
		Time:       aws.Time(ev.Time),
	}
	if len(s.eventBus) > 0 {
		entry.EventBusName = aws.String(s.eventBus)
	}

	out, err := s.client.PutEvents(ctx, &cloudwatchevents.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return errors.Wrap(err, "put events")
	}
	for _, e := range out.Entries {
		if e.ErrorCode != nil {
			return errors.Errorf("event rejected (%s): %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
		}
	}
	return nil
}
