package clusterinfo

import (
	"errors"
	"testing"
)

func TestNewStampsIdentity(t *testing.T) {
	in := New()
	md := in.Metadata()
	if md.InstanceID == "" {
		t.Fatal("expected a non-empty instance id")
	}
	if md.GoVersion == "" {
		t.Fatal("expected GoVersion to be populated")
	}
}

func TestHealthNoCheckersIsHealthy(t *testing.T) {
	in := New()
	h := in.Health()
	if h.Status != "healthy" {
		t.Fatalf("expected healthy with no checkers, got %s", h.Status)
	}
}

func TestHealthDegradesOnFailingChecker(t *testing.T) {
	in := New()
	in.RegisterChecker("store", func() error { return nil })
	in.RegisterChecker("catalogs", func() error { return errors.New("unreachable") })

	h := in.Health()
	if h.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", h.Status)
	}
	if h.Checks["store"] != true || h.Checks["catalogs"] != false {
		t.Fatalf("unexpected checks map: %+v", h.Checks)
	}
}

func TestUnregisterChecker(t *testing.T) {
	in := New()
	in.RegisterChecker("store", func() error { return errors.New("down") })
	in.UnregisterChecker("store")

	h := in.Health()
	if h.Status != "healthy" {
		t.Fatalf("expected healthy after unregistering the failing checker, got %s", h.Status)
	}
}
