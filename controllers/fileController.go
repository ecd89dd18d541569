package controllers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FileOpener reads stored blobs back by id.
type FileOpener interface {
	Open(id string) (io.ReadCloser, string, error)
}

type FileController struct {
	files FileOpener
	log   *slog.Logger
}

func NewFileController(files FileOpener, log *slog.Logger) *FileController {
	return &FileController{files: files, log: log}
}

// GetFile streams a stored image
func (h *FileController) GetFile(c *gin.Context) {
	rc, contentType, err := h.files.Open(c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
