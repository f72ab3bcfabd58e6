// health_reporter.go: Plugin readiness exposed through the grpc health protocol
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessHealthReporter mirrors the readiness of one legacy plugin into a
// grpc health server. The service is SERVING once the registry hands out the
// plugin's loader and NOT_SERVING otherwise. The overall ("") service follows
// the same status.
type ReadinessHealthReporter struct {
	registry Registry
	target   PluginTarget
	service  string
	server   *health.Server
	logger   Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewReadinessHealthReporter creates a reporter for target. An empty service
// name defaults to "<type>/<id>". The initial status is NOT_SERVING.
func NewReadinessHealthReporter(registry Registry, target PluginTarget, service string, logger any) *ReadinessHealthReporter {
	if service == "" {
		service = target.String()
	}
	r := &ReadinessHealthReporter{
		registry: registry,
		target:   target,
		service:  service,
		server:   health.NewServer(),
		logger:   NewLogger(logger).With("health_service", service),
		last:     healthpb.HealthCheckResponse_NOT_SERVING,
	}
	r.server.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Service returns the health service name.
func (r *ReadinessHealthReporter) Service() string { return r.service }

// Server returns the underlying health server.
func (r *ReadinessHealthReporter) Server() *health.Server { return r.server }

// Register exposes the health service on a grpc server.
func (r *ReadinessHealthReporter) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, r.server)
}

// Refresh evaluates readiness now and publishes the result.
func (r *ReadinessHealthReporter) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if r.targetReady() {
		status = healthpb.HealthCheckResponse_SERVING
	}

	r.mu.Lock()
	changed := status != r.last
	r.last = status
	r.mu.Unlock()

	if changed {
		r.server.SetServingStatus(r.service, status)
		r.server.SetServingStatus("", status)
		r.logger.Info("Plugin readiness changed", "status", status.String())
	}
	return status
}

func (r *ReadinessHealthReporter) targetReady() bool {
	found := false
	for _, t := range r.registry.PluginTypes() {
		if t == r.target.PluginType {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	entry, err := r.registry.GetPlugin(r.target.PluginType, r.target.PluginID)
	if err != nil || entry == nil {
		return false
	}
	loader, err := r.registry.ClassLoader(entry)
	return err == nil && loader != nil
}

// Run follows registry mutations until ctx ends, refreshing the status after
// each one. It returns nil on cancellation.
func (r *ReadinessHealthReporter) Run(ctx context.Context) error {
	sub := r.registry.Subscribe()
	defer sub.Close()

	for {
		r.Refresh()
		select {
		case <-ctx.Done():
			return nil
		case <-sub.C():
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores further updates.
func (r *ReadinessHealthReporter) Shutdown() {
	r.server.Shutdown()
}
