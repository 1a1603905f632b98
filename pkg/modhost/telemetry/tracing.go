/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package telemetry wires OpenTelemetry tracing for the orchestrator.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
	"github.com/codeproject/CodeProject.AI-Server-sub000/version"
)

const (
	ServiceName = "modhost"

	defaultSamplerType  = "parentbased_traceidratio"
	defaultSamplerRatio = 0.1
)

type errorHandler struct {
	logger logr.Logger
}

func (h *errorHandler) Handle(err error) {
	h.logger.V(logutil.DEFAULT).Error(err, "trace error occurred")
}

// InitTracing installs a global tracer provider configured from the standard OTEL_* environment variables.
// The provider is shut down once ctx is done.
func InitTracing(ctx context.Context, logger logr.Logger) error {
	logger = logger.WithName("trace")
	loggerWrap := &errorHandler{logger: logger}

	if _, ok := os.LookupEnv("OTEL_SERVICE_NAME"); !ok {
		os.Setenv("OTEL_SERVICE_NAME", ServiceName)
	}
	if _, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); !ok {
		os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")
	}

	traceExporter, err := newTraceExporter(ctx, logger)
	if err != nil {
		loggerWrap.Handle(fmt.Errorf("init trace exporter failed: %w", err))
		return err
	}

	sampler, err := newSampler(os.Getenv("OTEL_TRACES_SAMPLER"), os.Getenv("OTEL_TRACES_SAMPLER_ARG"))
	if err != nil {
		loggerWrap.Handle(err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(os.Getenv("OTEL_SERVICE_NAME")),
			semconv.ServiceVersionKey.String(version.ServerVersion),
		)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(loggerWrap)

	go func() {
		<-ctx.Done()
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			loggerWrap.Handle(fmt.Errorf("failed to shutdown TraceProvider: %w", err))
		}
		logger.V(logutil.DEFAULT).Info("trace provider shutting down")
	}()

	return nil
}

// newSampler builds the sampler named by OTEL_TRACES_SAMPLER. The Go SDK does not read the variable itself.
// Unsupported types fall back to parentbased_traceidratio and are reported through the returned error.
func newSampler(samplerType, samplerArg string) (sdktrace.Sampler, error) {
	if samplerType == "" {
		samplerType = defaultSamplerType
	}
	fraction := defaultSamplerRatio
	if samplerArg != "" {
		if f, err := strconv.ParseFloat(samplerArg, 64); err == nil {
			fraction = f
		}
	}

	switch samplerType {
	case defaultSamplerType:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(fraction)), nil
	case "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(defaultSamplerRatio)),
			fmt.Errorf("unsupported sampler type: %s, fallback to %s with %v ratio", samplerType, defaultSamplerType, defaultSamplerRatio)
	}
}

// newTraceExporter creates a SpanExporter. Supported OTEL_TRACES_EXPORTER values:
//   - console: spans are printed to stdout, for development
//   - otlp: spans are sent over gRPC to an OpenTelemetry collector
func newTraceExporter(ctx context.Context, logger logr.Logger) (sdktrace.SpanExporter, error) {
	exporterType, ok := os.LookupEnv("OTEL_TRACES_EXPORTER")
	if !ok {
		exporterType = "console"
	}

	logger.Info("init OTel trace exporter", "type", exporterType)
	if exporterType == "otlp" {
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp-grpc exporter: %w", err)
		}
		return exporter, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdouttrace exporter: %w", err)
	}
	return exporter, nil
}
