package errors

import (
	"errors"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := TaskFailed("task-1", "failed", "disk full")
	want := "TASK_FAILED: task 'task-1' ended with status failed: disk full"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := Timeout("deadline elapsed")
	wrapped := Wrap(inner, "waiting for export")

	if wrapped.Code != ErrCodeTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeTimeout, wrapped.Code)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should match inner via errors.Is")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestCode(t *testing.T) {
	if got := Code(NoCredential("none")); got != ErrCodeNoCredential {
		t.Errorf("expected %s, got %s", ErrCodeNoCredential, got)
	}
	if got := Code(errors.New("plain")); got != "" {
		t.Errorf("expected empty code for plain error, got %s", got)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Network("connection refused", nil), true},
		{Connection("channel lost", nil), true},
		{Auth("bad token"), false},
		{Validation("field", "bad"), false},
		{TaskNotFound("task-1"), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(Timeout("elapsed")) {
		t.Error("expected IsTimeout to match a TIMEOUT error")
	}
	if IsTimeout(Network("down", nil)) {
		t.Error("IsTimeout should not match a network error")
	}
}

func TestProcessExitedEarly(t *testing.T) {
	err := ProcessExitedEarly(3)
	if err.Code != ErrCodeProcessExitedEarly {
		t.Errorf("expected %s, got %s", ErrCodeProcessExitedEarly, err.Code)
	}
	want := "process exited with code 3 before becoming ready"
	if err.Message != want {
		t.Errorf("expected %q, got %q", want, err.Message)
	}
}
