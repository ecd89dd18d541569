package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultBucket = "images"

var ErrFileNotFound = errors.New("file not found")

// GridFS stores blobs in a MongoDB GridFS bucket. URLs point at publicBase/<file id>.
type GridFS struct {
	bucket     *gridfs.Bucket
	publicBase string
	maxBytes   int64
}

func NewGridFS(db *mongo.Database, bucketName, publicBase string, maxBytes int64) (*GridFS, error) {
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFS{bucket: bucket, publicBase: strings.TrimRight(publicBase, "/"), maxBytes: maxBytes}, nil
}

func (g *GridFS) Upload(ctx context.Context, blob Blob, folder string) (string, error) {
	if err := validFolder(folder); err != nil {
		return "", err
	}
	contentType, ext, err := Inspect(blob, g.maxBytes)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString() + ext
	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "contentType", Value: contentType},
		{Key: "folder", Value: folder},
		{Key: "originalName", Value: blob.Name},
	})
	if err := g.bucket.UploadFromStreamWithID(id, folder+"/"+id, bytes.NewReader(blob.Data), opts); err != nil {
		if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return g.publicBase + "/" + id, nil
}

// Open returns a reader for the stored file and its content type.
func (g *GridFS) Open(id string) (io.ReadCloser, string, error) {
	stream, err := g.bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", fmt.Errorf("%s: %w", id, ErrFileNotFound)
		}
		return nil, "", fmt.Errorf("gridfs open: %w", err)
	}
	contentType := "application/octet-stream"
	if meta := stream.GetFile().Metadata; meta != nil {
		if v, ok := meta.Lookup("contentType").StringValueOK(); ok {
			contentType = v
		}
	}
	return stream, contentType, nil
}
