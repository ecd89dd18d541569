// Package upload fans a batch of images out to the object store and collects the
// results back in submission order.
package upload

import (
	"context"
	"log/slog"
	"sort"

	"fixmyarea-be/objectstore"
	"fixmyarea-be/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives the completed percentage after every finished upload. It is
// always called from a single goroutine with non-decreasing values.
type ProgressFunc func(percent int)

// Result is the outcome of a submission where at least one image uploaded.
type Result struct {
	URLs      []string
	Requested int
	Failures  []Failure
}

type Orchestrator struct {
	client         objectstore.Client
	folder         string
	maxConcurrency int
	log            *slog.Logger
	images         metric.Int64Counter
}

type Option func(*Orchestrator)

// WithMaxConcurrency bounds the number of uploads in flight. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) { o.maxConcurrency = n }
}

func WithFolder(folder string) Option {
	return func(o *Orchestrator) { o.folder = folder }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func New(client objectstore.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		folder: objectstore.FolderIssueImages,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	counter, err := telemetry.Meter(meterName).Int64Counter("fixmyarea.upload.images",
		metric.WithDescription("Images processed by the upload orchestrator"))
	if err != nil {
		o.log.Warn("upload metric unavailable", "error", err)
	}
	o.images = counter
	return o
}

const meterName = "fixmyarea-be/upload"

type outcome struct {
	index int
	url   string
	err   error
}

// Submit uploads every image concurrently. A failed image never cancels its siblings;
// Submit fails only when no image uploaded or ctx ended before all outcomes arrived.
func (o *Orchestrator) Submit(ctx context.Context, images []objectstore.Blob, progress ProgressFunc) (*Result, error) {
	ctx, span := telemetry.Tracer(meterName).Start(ctx, "upload.submit")
	defer span.End()
	span.SetAttributes(attribute.Int("upload.requested", len(images)))

	total := len(images)
	if total == 0 {
		span.SetStatus(codes.Error, ErrNoImagesUploaded.Error())
		return nil, &UploadError{Err: ErrNoImagesUploaded}
	}

	results := make(chan outcome, total)
	var g errgroup.Group
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}
	// Go blocks once the limit is reached, so launching happens off the collector's goroutine.
	go func() {
		for i, img := range images {
			i, img := i, img
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					results <- outcome{index: i, err: err}
					return nil
				}
				url, err := o.client.Upload(ctx, img, o.folder)
				results <- outcome{index: i, url: url, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	urls := make([]indexedURL, 0, total)
	var failures []Failure
	completed := 0
	for res := range results {
		completed++
		if res.err != nil {
			f := Failure{Index: res.index, Name: images[res.index].Name, Kind: classify(res.err), Reason: res.err.Error()}
			failures = append(failures, f)
			o.count(ctx, f.Kind)
			o.log.Warn("image upload failed", "index", f.Index, "name", f.Name, "kind", f.Kind, "error", res.err)
		} else {
			urls = append(urls, indexedURL{index: res.index, url: res.url})
			o.count(ctx, "ok")
		}
		if progress != nil {
			progress(completed * 100 / total)
		}
	}

	sort.Slice(urls, func(i, j int) bool { return urls[i].index < urls[j].index })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })

	if err := ctx.Err(); err != nil {
		// uploads that finished stay in the object store
		if len(urls) > 0 {
			o.log.Warn("submission canceled, orphaned uploads left in object store", "urls", plainURLs(urls), "error", err)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, &UploadError{Requested: total, Failures: failures, Err: err}
	}
	if len(urls) == 0 {
		span.SetStatus(codes.Error, ErrNoImagesUploaded.Error())
		return nil, &UploadError{Requested: total, Failures: failures, Err: ErrNoImagesUploaded}
	}

	span.SetAttributes(attribute.Int("upload.uploaded", len(urls)))
	return &Result{URLs: plainURLs(urls), Requested: total, Failures: failures}, nil
}

type indexedURL struct {
	index int
	url   string
}

func plainURLs(in []indexedURL) []string {
	out := make([]string, len(in))
	for i, u := range in {
		out[i] = u.url
	}
	return out
}

func (o *Orchestrator) count(ctx context.Context, kind FailureKind) {
	if o.images == nil {
		return
	}
	o.images.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(kind))))
}
