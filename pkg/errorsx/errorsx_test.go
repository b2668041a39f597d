package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTTSSynthesize)
	if Reason(err) != ReasonTTSSynthesize {
		t.Fatalf("expected reason %s, got %s", ReasonTTSSynthesize, Reason(err))
	}
	if !HasReason(err, ReasonTTSSynthesize) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSTTTranscribe)
	second := Wrap(first, ReasonLLMGenerate)
	if Reason(second) != ReasonSTTTranscribe {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("stop pipeline: %w", New(ReasonShutdownTimeout, "worker still running"))
	if !HasReason(err, ReasonShutdownTimeout) {
		t.Fatalf("expected shutdown reason through fmt wrap, got %s", Reason(err))
	}
}

func TestErrorfKeepsCause(t *testing.T) {
	cause := assertErr{}
	err := Errorf(ReasonLLMStream, "open stream: %w", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("nil error should have unknown reason")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
