package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/huangang/taskflow/internal/services"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"not found", fmt.Errorf("%w: task x", services.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", services.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"transition", fmt.Errorf("%w: TODO -> DONE", services.ErrInvalidTransition), http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{"hierarchy", services.ErrInvalidHierarchy, http.StatusUnprocessableEntity, "INVALID_HIERARCHY"},
		{"rate limited", services.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unavailable", fmt.Errorf("%w: redis down", services.ErrUnavailable), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"invalid input", services.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAppError(tt.err)
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("status = %d, expected %d", got.HTTPStatus, tt.wantStatus)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %q, expected %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestToAppError_HidesInternalDetails(t *testing.T) {
	got := toAppError(errors.New("dial tcp 10.0.0.5:5432: secret"))
	if got.Message != "internal server error" {
		t.Errorf("leaked message %q", got.Message)
	}
	got = toAppError(fmt.Errorf("%w: dial tcp 10.0.0.5:6379", services.ErrUnavailable))
	if got.Message != "service temporarily unavailable" {
		t.Errorf("leaked message %q", got.Message)
	}
}
