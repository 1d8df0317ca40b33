package forageable

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  NewStorageError("write failed", nil),
			want: "[storage] write failed",
		},
		{
			name: "op and id",
			err:  NewStorageError("write failed", errors.New("disk full")).WithOp("replace").WithID(3),
			want: "[storage] write failed (op=replace, id=3): disk full",
		},
		{
			name: "id only",
			err:  NewNotFoundError(9),
			want: "[not_found] no forageable with that id (id=9): forageable not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cancelled := NewCancelledError("scope closed", context.Canceled).WithOp("insert")
	wrapped := fmt.Errorf("task failed: %w", cancelled)

	if !IsCancelled(wrapped) {
		t.Error("expected wrapped error to be classified as cancelled")
	}
	if !errors.Is(wrapped, context.Canceled) {
		t.Error("expected wrapped error to match context.Canceled")
	}
	if !errors.Is(wrapped, &Error{Class: ErrorClassCancelled}) {
		t.Error("expected class match through errors.Is")
	}
	if errors.Is(wrapped, &Error{Class: ErrorClassStorage}) {
		t.Error("did not expect storage class match")
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("expected unclassified error to have empty class")
	}
	if !IsNotFound(NewNotFoundError(1)) || !errors.Is(NewNotFoundError(1), ErrNotFound) {
		t.Error("expected not found error to match ErrNotFound")
	}
}
