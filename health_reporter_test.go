// health_reporter_test.go: grpc health mirroring of plugin readiness
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func checkHealth(t *testing.T, r *ReadinessHealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReadinessHealthReporter_Refresh(t *testing.T) {
	registry := NewPluginRegistry(nil)
	reporter := NewReadinessHealthReporter(registry, testTarget, "", nil)

	assert.Equal(t, "LifecyclePluginType/HadoopSpoonPlugin", reporter.Service())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, reporter, reporter.Service()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, reporter, ""))

	require.NoError(t, registry.RegisterPluginType(testPluginType))
	require.NoError(t, registry.RegisterPlugin(PluginEntry{Type: testPluginType, IDs: []string{testPluginID}}, nil))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, reporter.Refresh(), "registered but not ready")

	require.NoError(t, registry.MarkReady(testPluginType, testPluginID, NewStaticLoader("legacy")))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, reporter.Refresh())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, reporter, reporter.Service()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, reporter, ""))

	require.NoError(t, registry.RemovePlugin(testPluginType, testPluginID))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, reporter.Refresh())
}

func TestReadinessHealthReporter_Run(t *testing.T) {
	registry := NewPluginRegistry(nil)
	logger := NewTestLogger()
	reporter := NewReadinessHealthReporter(registry, testTarget, "shim-bridge", logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reporter.Run(ctx) }()

	require.Eventually(t, func() bool { return registry.Stats().Subscribers == 1 }, time.Second, 5*time.Millisecond)
	registerReady(t, registry, NewStaticLoader("legacy"))

	require.Eventually(t, func() bool {
		resp, err := reporter.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "shim-bridge"})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, logger.HasMessage("INFO", "Plugin readiness changed"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, registry.Stats().Subscribers)
}

func TestReadinessHealthReporter_RegisterAndShutdown(t *testing.T) {
	registry := NewPluginRegistry(nil)
	registerReady(t, registry, NewStaticLoader("legacy"))
	reporter := NewReadinessHealthReporter(registry, testTarget, "", nil)
	reporter.Refresh()

	server := grpc.NewServer()
	reporter.Register(server)
	_, ok := server.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]
	assert.True(t, ok, "health service registered")

	reporter.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, reporter, reporter.Service()))
	server.Stop()
}
