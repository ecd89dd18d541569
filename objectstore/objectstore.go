// Package objectstore uploads image blobs and returns their public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Folders images are filed under.
const (
	FolderIssueImages   = "issue_images"
	FolderProfileImages = "profile_images"
)

const DefaultMaxBytes = 10 << 20

var (
	ErrNetwork           = errors.New("object store unreachable")
	ErrQuota             = errors.New("object store quota or permission exceeded")
	ErrMalformedResponse = errors.New("object store returned a malformed response")
	ErrRejected          = errors.New("blob rejected")
)

// AllowedImageTypes are the content types accepted for upload.
var AllowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// Blob is one image to upload.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Client uploads a blob into folder and returns its URL.
type Client interface {
	Upload(ctx context.Context, blob Blob, folder string) (string, error)
}

// Inspect sniffs the blob content and checks it against the image allowlist and maxBytes.
// It returns the detected content type and its file extension.
func Inspect(blob Blob, maxBytes int64) (contentType, ext string, err error) {
	if len(blob.Data) == 0 {
		return "", "", fmt.Errorf("%s is empty: %w", blob.Name, ErrRejected)
	}
	if maxBytes > 0 && int64(len(blob.Data)) > maxBytes {
		return "", "", fmt.Errorf("%s exceeds %d bytes: %w", blob.Name, maxBytes, ErrRejected)
	}
	mt := mimetype.Detect(blob.Data)
	contentType = strings.Split(mt.String(), ";")[0]
	ext, ok := AllowedImageTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%s has type %s: %w", blob.Name, contentType, ErrRejected)
	}
	return contentType, ext, nil
}

func validFolder(folder string) error {
	if folder == "" || strings.ContainsAny(folder, `/\.`) {
		return fmt.Errorf("folder %q: %w", folder, ErrRejected)
	}
	return nil
}
