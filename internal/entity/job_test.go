package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJob_TransitionForwardOnly(t *testing.T) {
	j := NewJob(uuid.New(), KindInline, "a.wav", "/tmp/a.wav", time.Now())

	if err := j.Transition(StatusProcessing); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if err := j.Transition(StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("processing -> pending should fail, got %v", err)
	}
	if err := j.Transition(StatusCompleted); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	for _, to := range []JobStatus{StatusPending, StatusProcessing, StatusFailed, StatusCompleted} {
		if err := j.Transition(to); err == nil {
			t.Fatalf("completed -> %s should fail", to)
		}
	}
}

func TestJob_PendingCanFailButNotComplete(t *testing.T) {
	j := NewJob(uuid.New(), KindFile, "a.wav", "", time.Now())
	if err := j.Transition(StatusCompleted); err == nil {
		t.Fatalf("pending -> completed must skip nothing")
	}
	if err := j.Transition(StatusFailed); err != nil {
		t.Fatalf("pending -> failed: %v", err)
	}
}

func TestJob_CloneDoesNotShare(t *testing.T) {
	msg := "boom"
	j := Job{
		Partial: []Segment{{Index: 1, Text: "a"}},
		Result:  &Result{Segments: []Segment{{Index: 1, Text: "a"}}},
		Error:   &msg,
	}
	c := j.Clone()
	c.Partial[0].Text = "changed"
	c.Result.Segments[0].Text = "changed"
	*c.Error = "changed"

	if j.Partial[0].Text != "a" || j.Result.Segments[0].Text != "a" || *j.Error != "boom" {
		t.Fatalf("clone shares memory with original: %+v", j)
	}
}
