package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jacentio/lottrace/registry"
	"github.com/jacentio/lottrace/store"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", registry.ErrNotFound), http.StatusNotFound},
		{"no route", errNoRoute, http.StatusNotFound},
		{"method", errMethod, http.StatusMethodNotAllowed},
		{"bad request", fmt.Errorf("%w: limit", errBadRequest), http.StatusBadRequest},
		{"invalid record", registry.ErrInvalidRecord, http.StatusBadRequest},
		{
			name: "batch with invalid record",
			err:  fmt.Errorf("%w: record 1 (%q): %w", registry.ErrInvalidBatch, "", registry.ErrInvalidRecord),
			want: http.StatusBadRequest,
		},
		{
			name: "batch with duplicate",
			err:  fmt.Errorf("%w: %w", registry.ErrInvalidBatch, registry.ErrAlreadyExists),
			want: http.StatusConflict,
		},
		{"already exists", registry.ErrAlreadyExists, http.StatusConflict},
		{
			name: "concurrent modification",
			err:  fmt.Errorf("%w: lot 0x01 version 1", store.ErrConcurrentModification),
			want: http.StatusConflict,
		},
		{
			name: "transaction too large",
			err:  fmt.Errorf("%w: 130 write actions, limit 100", store.ErrTransactionTooLarge),
			want: http.StatusRequestEntityTooLarge,
		},
		{"other", errors.New("dynamodb: throttled"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.err); got != tt.want {
				t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
