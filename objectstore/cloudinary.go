package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const cloudinaryAPI = "https://api.cloudinary.com/v1_1"

// Cloudinary uploads through the unsigned upload endpoint of a Cloudinary cloud.
type Cloudinary struct {
	endpoint     string
	uploadPreset string
	maxBytes     int64
	client       *http.Client
}

type CloudinaryOption func(*Cloudinary)

// WithEndpoint overrides the upload URL.
func WithEndpoint(url string) CloudinaryOption {
	return func(c *Cloudinary) { c.endpoint = url }
}

func WithHTTPClient(client *http.Client) CloudinaryOption {
	return func(c *Cloudinary) { c.client = client }
}

func NewCloudinary(cloudName, uploadPreset string, maxBytes int64, opts ...CloudinaryOption) *Cloudinary {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	c := &Cloudinary{
		endpoint:     fmt.Sprintf("%s/%s/image/upload", cloudinaryAPI, cloudName),
		uploadPreset: uploadPreset,
		maxBytes:     maxBytes,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) Upload(ctx context.Context, blob Blob, folder string) (string, error) {
	if err := validFolder(folder); err != nil {
		return "", err
	}
	if _, _, err := Inspect(blob, c.maxBytes); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("upload_preset", c.uploadPreset)
	_ = w.WriteField("folder", folder)
	part, err := w.CreateFormFile("file", blob.Name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var parsed cloudinaryResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: %d %s", classifyStatus(resp.StatusCode), resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	url := parsed.SecureURL
	if url == "" {
		url = parsed.URL
	}
	if url == "" {
		return "", fmt.Errorf("%w: no url in response", ErrMalformedResponse)
	}
	return url, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == 420, code == http.StatusTooManyRequests:
		return ErrQuota
	case code >= 500:
		return ErrNetwork
	default:
		return ErrRejected
	}
}

// IsTransient reports whether err is worth retrying by the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork)
}
