package component

import (
	"context"
	"testing"
)

type plain struct{ name string }

func (p *plain) Name() string                  { return p.name }
func (p *plain) Start(context.Context) error   { return nil }
func (p *plain) Stop(context.Context) error    { return nil }
func (p *plain) Health(context.Context) Health { return Health{Name: p.name, Status: StatusHealthy} }

type described struct{ plain }

func (d *described) Describe() Description {
	return Description{Type: "database", Details: "sqlite test_abc"}
}

func TestDescribeFallsBackToName(t *testing.T) {
	d := Describe(&plain{name: "tempdb"})
	if d.Name != "tempdb" || d.Type != "" {
		t.Errorf("unexpected description %+v", d)
	}
}

func TestDescribeUsesDescribable(t *testing.T) {
	d := Describe(&described{plain{name: "tempdb"}})
	if d.Name != "tempdb" {
		t.Errorf("expected name to default to Name(), got %q", d.Name)
	}
	if d.Type != "database" || d.Details != "sqlite test_abc" {
		t.Errorf("unexpected description %+v", d)
	}
}

func TestHealthHealthy(t *testing.T) {
	if !(Health{Status: StatusHealthy}).Healthy() {
		t.Error("expected healthy")
	}
	if (Health{Status: StatusDegraded}).Healthy() {
		t.Error("degraded is not healthy")
	}
}
