// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	safearchive "github.com/hashicorp/go-safearchive"
	"github.com/hashicorp/go-safearchive/events"
	"github.com/hashicorp/go-safearchive/events/cloudwatch"
)

// envEventBus names the EventBridge bus security events are published to.
// Without it, events are only logged.
const envEventBus = "SAFEARCHIVE_EVENT_BUS"

// main starts the lambda handler
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sink := events.Sink(events.NewLogSink(logger))
	if bus, ok := os.LookupEnv(envEventBus); ok {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Error("cannot load aws config", "error", err)
			os.Exit(1)
		}
		client := cloudwatchevents.NewFromConfig(cfg)
		sink = events.Multi(sink, cloudwatch.NewSink(client, bus, cloudwatch.WithErrorLogger(logger)))
	}

	engine := safearchive.New(
		safearchive.WithEventSink(sink),
		safearchive.WithLogger(logger),
	)

	lambda.Start(newHandler(engine))
}
