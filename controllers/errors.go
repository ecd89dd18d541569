package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"fixmyarea-be/access"
	"fixmyarea-be/identity"
	"fixmyarea-be/lifecycle"
	"fixmyarea-be/middlewares"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/store"
	"fixmyarea-be/upload"

	"github.com/gin-gonic/gin"
)

// errorBody maps err to its HTTP status and response body.
func errorBody(err error) (int, gin.H) {
	var (
		verr *models.ValidationError
		uerr *upload.UploadError
		ite  *lifecycle.InvalidTransitionError
		serr *store.Error
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field}
	case errors.As(err, &uerr):
		return http.StatusUnprocessableEntity, gin.H{"error": uerr.Error(), "requested": uerr.Requested, "failures": uerr.Failures}
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, gin.H{"error": "User not authenticated"}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, gin.H{"error": "Invalid credentials"}
	case errors.As(err, &ite):
		return http.StatusConflict, gin.H{"error": ite.Error(), "from": ite.From, "to": ite.To}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, objectstore.ErrFileNotFound):
		return http.StatusNotFound, gin.H{"error": "Not found"}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, gin.H{"error": "Already exists"}
	case errors.As(err, &serr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Something went wrong"}
	}
}

func respondError(c *gin.Context, log *slog.Logger, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

// session returns the access session of the authenticated caller, or nil.
func session(c *gin.Context) *access.Session {
	if caller := middlewares.CallerFrom(c); caller != nil {
		return caller.Session
	}
	return nil
}

// readBlob loads one uploaded file, refusing anything over maxBytes.
func readBlob(fh *multipart.FileHeader, field string, maxBytes int64) (*objectstore.Blob, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, models.Invalid(field, "%s exceeds %d bytes", fh.Filename, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return &objectstore.Blob{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
