package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

func decodeHealth(t *testing.T, msg publishedMessage) HealthMessage {
	t.Helper()
	var h HealthMessage
	if err := json.Unmarshal(msg.payload, &h); err != nil {
		t.Fatalf("health payload: %v", err)
	}
	return h
}

func newHealthRegistry(t *testing.T, vendor *fakeVendor) *coordinator.Registry {
	t.Helper()
	reg := coordinator.NewRegistry(vendor, coordinator.Options{Interval: time.Hour})
	for _, d := range []device.Device{
		{ID: "L1", Kind: device.KindLight},
		{ID: "L2", Kind: device.KindLight},
		{ID: "R1", Kind: device.KindRemote},
	} {
		if _, err := reg.Add(d); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	t.Cleanup(reg.Stop)
	return reg
}

func TestHealthReporter_Status(t *testing.T) {
	vendor := &fakeVendor{statuses: map[string]*cloud.Status{
		"L1": {DeviceID: "L1"},
		"L2": {DeviceID: "L2"},
	}}
	reg := newHealthRegistry(t, vendor)
	if _, err := reg.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	pub := newMockMQTT()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "cloud",
		SiteID:    "home",
		Version:   "1.2.3",
		Publisher: pub,
		Devices:   reg,
	})
	h.SetEntityCount(2)

	msg := h.Current()
	if msg.Status != HealthHealthy || msg.Reason != "" {
		t.Errorf("Current() = %s %q, want healthy", msg.Status, msg.Reason)
	}
	if msg.DevicesManaged != 3 || msg.EntitiesManaged != 2 || msg.Version != "1.2.3" || msg.Site != "home" {
		t.Errorf("Current() = %+v", msg)
	}

	vendor.setFetchErr(fmt.Errorf("%w: timeout", cloud.ErrNetwork))
	c, _ := reg.Coordinator("L2")
	_ = c.Refresh(context.Background())

	msg = h.Current()
	if msg.Status != HealthDegraded || msg.DevicesFailing != 1 {
		t.Fatalf("Current() after failure = %+v", msg)
	}
	if msg.Failing[0].DeviceID != "L2" || msg.Failing[0].Error == "" {
		t.Errorf("Failing = %+v", msg.Failing)
	}

	vendor.setFetchErr(fmt.Errorf("%w: bad token", cloud.ErrAuth))
	c, _ = reg.Coordinator("L1")
	_ = c.Refresh(context.Background())

	msg = h.Current()
	if msg.Reason != "vendor authentication failed" {
		t.Errorf("Reason = %q, want authentication failure", msg.Reason)
	}

	pub.setConnected(false)
	if msg := h.Current(); msg.Reason != "MQTT disconnected" {
		t.Errorf("Reason = %q, want MQTT disconnected", msg.Reason)
	}
}

func TestHealthReporter_PublishLifecycle(t *testing.T) {
	pub := newMockMQTT()
	reg := newHealthRegistry(t, &fakeVendor{})
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "cloud", Publisher: pub, Devices: reg, Interval: time.Hour})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	msg := mustLast(t, pub, "graylogic/health/cloud")
	if !msg.retained || msg.qos != 1 {
		t.Errorf("health publish retained=%v qos=%d", msg.retained, msg.qos)
	}
	if got := decodeHealth(t, msg).Status; got != HealthStarting {
		t.Errorf("status = %s, want starting", got)
	}

	h.Start(context.Background())
	h.Stop()
	h.Stop()

	// starting, initial report, stopping
	if got := pub.count("graylogic/health/cloud"); got != 3 {
		t.Errorf("health publishes = %d, want 3", got)
	}
	if got := decodeHealth(t, mustLast(t, pub, "graylogic/health/cloud")).Status; got != HealthStopping {
		t.Errorf("final status = %s, want stopping", got)
	}
}

func TestHealthReporter_PublishError(t *testing.T) {
	pub := newMockMQTT()
	pub.failWith = errors.New("broker gone")
	h := NewHealthReporter(HealthReporterConfig{Publisher: pub})

	if err := h.PublishNow(); err == nil {
		t.Error("PublishNow() should return the publish error")
	}
	if err := NewHealthReporter(HealthReporterConfig{}).PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher error = %v", err)
	}
}
