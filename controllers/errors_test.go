package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"fixmyarea-be/access"
	"fixmyarea-be/identity"
	"fixmyarea-be/lifecycle"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/store"
	"fixmyarea-be/upload"

	"github.com/stretchr/testify/assert"
)

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"validation", models.Invalid("title", "is required"), http.StatusBadRequest, "title"},
		{"wrapped validation", fmt.Errorf("report: %w", models.Invalid("images", "too many")), http.StatusBadRequest, "images"},
		{"upload", &upload.UploadError{Requested: 2}, http.StatusUnprocessableEntity, ""},
		{"forbidden", access.ErrForbidden, http.StatusForbidden, ""},
		{"unauthenticated", identity.ErrUnauthenticated, http.StatusUnauthorized, ""},
		{"bad credentials", identity.ErrInvalidCredentials, http.StatusUnauthorized, ""},
		{"transition", &lifecycle.InvalidTransitionError{From: models.Resolved, To: models.Pending}, http.StatusConflict, ""},
		{"not found", fmt.Errorf("issue x: %w", store.ErrNotFound), http.StatusNotFound, ""},
		{"file not found", objectstore.ErrFileNotFound, http.StatusNotFound, ""},
		{"conflict", store.ErrConflict, http.StatusConflict, ""},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorBody(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
			if tt.field != "" {
				assert.Equal(t, tt.field, body["field"])
			}
		})
	}
}

func TestErrorBodyHidesInternalDetail(t *testing.T) {
	_, body := errorBody(errors.New("mongo: connection refused at 10.0.0.3"))
	assert.Equal(t, "Something went wrong", body["error"])
}
