package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry, err := NewRegistry(jobA)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("Register: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicatesAndEmptyNames(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "sweep"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Register(&stubJob{name: "sweep"}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if err := registry.Register(&stubJob{}); err == nil {
		t.Fatal("expected empty name to be rejected")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if _, err := NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"}); err == nil {
		t.Fatal("expected constructor to reject duplicates")
	}
}
