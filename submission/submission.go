// Package submission composes upload, lifecycle and access into the issue use cases:
// reporting, moderation, upvoting and statistics.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fixmyarea-be/access"
	"fixmyarea-be/events"
	"fixmyarea-be/lifecycle"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/store"
	"fixmyarea-be/telemetry"
	"fixmyarea-be/upload"
	"fixmyarea-be/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type IssueStore interface {
	Create(ctx context.Context, issue *models.Issue) error
	Get(ctx context.Context, id string) (*models.Issue, error)
	UpdateStatus(ctx context.Context, id string, from, to models.IssueStatus, lastUpdated int64) error
	AdjustUpvotes(ctx context.Context, id string, delta int64) error
	ListBy(ctx context.Context, field string, value any) ([]*models.Issue, error)
	All(ctx context.Context) ([]*models.Issue, error)
}

type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

type VoteStore interface {
	Cast(ctx context.Context, issueID, userID string, at int64) (bool, error)
	Retract(ctx context.Context, issueID, userID string) (bool, error)
	Exists(ctx context.Context, issueID, userID string) (bool, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, s *access.Session, a access.Action) error
}

type Uploader interface {
	Submit(ctx context.Context, images []objectstore.Blob, progress upload.ProgressFunc) (*upload.Result, error)
}

type Deps struct {
	Issues    IssueStore
	Users     UserCounter
	Votes     VoteStore
	Gate      Authorizer
	Uploader  Uploader
	Publisher events.Publisher
	Lifecycle *lifecycle.Machine
	Logger    *slog.Logger
	Now       func() time.Time
}

type Service struct {
	issues    IssueStore
	users     UserCounter
	votes     VoteStore
	gate      Authorizer
	uploader  Uploader
	publisher events.Publisher
	machine   *lifecycle.Machine
	log       *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Lifecycle == nil {
		d.Lifecycle = lifecycle.New(d.Now)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = events.NewLogPublisher(d.Logger)
	}
	return &Service{
		issues:    d.Issues,
		users:     d.Users,
		votes:     d.Votes,
		gate:      d.Gate,
		uploader:  d.Uploader,
		publisher: d.Publisher,
		machine:   d.Lifecycle,
		log:       d.Logger,
		now:       d.Now,
	}
}

const tracerName = "fixmyarea-be/submission"

// ReportFields are the caller-supplied fields of a new issue.
type ReportFields struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"required,max=2000"`
	Category    models.IssueCategory `json:"category" validate:"required,oneof=road water electricity sanitation other"`
	Location    string               `json:"location" validate:"required,max=300"`
	Latitude    *float64             `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64             `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (f *ReportFields) normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Location = strings.TrimSpace(f.Location)
	f.Category = models.IssueCategory(strings.ToLower(strings.TrimSpace(string(f.Category))))
}

func (f *ReportFields) validate(images int) error {
	if err := utils.ValidateStruct(f); err != nil {
		return err
	}
	if (f.Latitude == nil) != (f.Longitude == nil) {
		return models.Invalid("latitude", "latitude and longitude must be given together")
	}
	if images < models.MinIssueImages || images > models.MaxIssueImages {
		return models.Invalid("images", "between %d and %d images are required, got %d",
			models.MinIssueImages, models.MaxIssueImages, images)
	}
	return nil
}

// Receipt describes a stored report. Uploaded can be lower than Requested; the missing
// images are listed in Failures.
type Receipt struct {
	IssueID   string           `json:"issueId"`
	Issue     *models.Issue    `json:"issue"`
	Requested int              `json:"requested"`
	Uploaded  int              `json:"uploaded"`
	Failures  []upload.Failure `json:"failures,omitempty"`
}

// Partial reports whether some requested images are missing from the issue.
func (r *Receipt) Partial() bool {
	return r.Uploaded < r.Requested
}

// ReportIssue validates, authorizes, uploads the images and writes the pending issue.
// Nothing is written unless every step before the write succeeds.
func (s *Service) ReportIssue(ctx context.Context, session *access.Session, fields ReportFields, images []objectstore.Blob, progress upload.ProgressFunc) (*Receipt, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "submission.report_issue")
	defer span.End()

	fields.normalize()
	if err := fields.validate(len(images)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.gate.Authorize(ctx, session, access.CreateIssue()); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := s.uploader.Submit(ctx, images, progress)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	created := models.Millis(s.now())
	issue := &models.Issue{
		Title:       fields.Title,
		Description: fields.Description,
		Category:    fields.Category,
		Location:    fields.Location,
		Latitude:    fields.Latitude,
		Longitude:   fields.Longitude,
		ImageURLs:   res.URLs,
		ReporterID:  session.CallerID(),
		Status:      models.Pending,
		Timestamp:   created,
		LastUpdated: created,
		Upvotes:     0,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		s.log.Warn("issue not stored, uploaded images are orphaned", "urls", res.URLs, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("issue.id", issue.ID),
		attribute.Int("upload.requested", res.Requested),
		attribute.Int("upload.uploaded", len(res.URLs)),
	)
	if len(res.URLs) < res.Requested {
		s.log.Info("issue stored with partial images", "issue_id", issue.ID,
			"requested", res.Requested, "uploaded", len(res.URLs))
	}
	events.Emit(ctx, s.publisher, s.log, events.IssueReported, events.IssueReportedEvent{
		IssueID:    issue.ID,
		ReporterID: issue.ReporterID,
		Category:   string(issue.Category),
		Images:     len(issue.ImageURLs),
		Requested:  res.Requested,
		Timestamp:  issue.Timestamp,
	})

	return &Receipt{
		IssueID:   issue.ID,
		Issue:     issue,
		Requested: res.Requested,
		Uploaded:  len(res.URLs),
		Failures:  res.Failures,
	}, nil
}

// ModerateIssue moves an issue to requested. The issue must exist, the caller must be an
// admin and the transition must be in the lifecycle table.
func (s *Service) ModerateIssue(ctx context.Context, session *access.Session, issueID string, requested models.IssueStatus) (*models.Issue, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "submission.moderate_issue")
	defer span.End()
	span.SetAttributes(attribute.String("issue.id", issueID), attribute.String("issue.requested_status", string(requested)))

	if session == nil || session.Closed() {
		return nil, access.ErrUnauthenticated
	}
	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.gate.Authorize(ctx, session, access.TransitionIssue(requested)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	from := issue.Status
	if err := s.machine.Apply(issue, requested); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.issues.UpdateStatus(ctx, issue.ID, from, issue.Status, issue.LastUpdated); err != nil {
		if errors.Is(err, store.ErrStale) {
			err = s.staleTransition(ctx, issue.ID, requested, err)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("issue moderated", "issue_id", issue.ID, "from", from, "to", issue.Status, "actor", session.CallerID())
	events.Emit(ctx, s.publisher, s.log, events.IssueStatusChanged, events.IssueStatusChangedEvent{
		IssueID:   issue.ID,
		From:      string(from),
		To:        string(issue.Status),
		ActorID:   session.CallerID(),
		Timestamp: issue.LastUpdated,
	})
	return issue, nil
}

// staleTransition reports a status write that lost to a concurrent moderation as a
// transition from the status that won.
func (s *Service) staleTransition(ctx context.Context, issueID string, requested models.IssueStatus, cause error) error {
	current, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return fmt.Errorf("%w (re-read: %v)", cause, err)
	}
	return &lifecycle.InvalidTransitionError{From: current.Status, To: requested}
}

func (s *Service) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	return s.issues.Get(ctx, id)
}

// IssueFilter narrows ListIssues. Empty fields match everything.
type IssueFilter struct {
	Status     models.IssueStatus
	Category   models.IssueCategory
	ReporterID string
}

// ListIssues returns matching issues, newest first.
func (s *Service) ListIssues(ctx context.Context, f IssueFilter) ([]*models.Issue, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.Invalid("status", "unknown status %q", f.Status)
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, models.Invalid("category", "unknown category %q", f.Category)
	}

	var (
		issues []*models.Issue
		err    error
	)
	switch {
	case f.ReporterID != "":
		issues, err = s.issues.ListBy(ctx, models.FieldIssueReporterID, f.ReporterID)
	case f.Status != "":
		issues, err = s.issues.ListBy(ctx, models.FieldIssueStatus, string(f.Status))
	case f.Category != "":
		issues, err = s.issues.ListBy(ctx, models.FieldIssueCategory, string(f.Category))
	default:
		issues, err = s.issues.All(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := issues[:0]
	for _, issue := range issues {
		if f.Status != "" && issue.Status != f.Status {
			continue
		}
		if f.Category != "" && issue.Category != f.Category {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

// UpvoteResult is the caller's vote state after a toggle.
type UpvoteResult struct {
	Voted   bool `json:"voted"`
	Upvotes int  `json:"votes"`
}

// ToggleUpvote adds the caller's vote to an issue, or removes it when already present.
func (s *Service) ToggleUpvote(ctx context.Context, session *access.Session, issueID string) (*UpvoteResult, error) {
	if err := s.gate.Authorize(ctx, session, access.UpvoteIssue()); err != nil {
		return nil, err
	}
	if _, err := s.issues.Get(ctx, issueID); err != nil {
		return nil, err
	}
	userID := session.CallerID()

	added, err := s.votes.Cast(ctx, issueID, userID, models.Millis(s.now()))
	if err != nil {
		return nil, err
	}
	delta := int64(1)
	if !added {
		removed, err := s.votes.Retract(ctx, issueID, userID)
		if err != nil {
			return nil, err
		}
		if !removed {
			// another request removed it in between; nothing left to count
			delta = 0
		} else {
			delta = -1
		}
	}
	if delta != 0 {
		if err := s.issues.AdjustUpvotes(ctx, issueID, delta); err != nil {
			return nil, fmt.Errorf("vote recorded but counter not updated: %w", err)
		}
	}

	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.log, events.IssueUpvoted, events.IssueUpvotedEvent{
		IssueID: issueID,
		UserID:  userID,
		Voted:   added,
	})
	return &UpvoteResult{Voted: added, Upvotes: issue.Upvotes}, nil
}

// HasVoted reports whether the caller has an active vote on issueID.
func (s *Service) HasVoted(ctx context.Context, session *access.Session, issueID string) (bool, error) {
	if session == nil || session.Closed() {
		return false, access.ErrUnauthenticated
	}
	return s.votes.Exists(ctx, issueID, session.CallerID())
}

// Statistics are system-wide counts for the admin dashboard.
type Statistics struct {
	TotalIssues  int                          `json:"totalIssues"`
	TotalUsers   int                          `json:"totalUsers"`
	TotalUpvotes int                          `json:"totalUpvotes"`
	ByStatus     map[models.IssueStatus]int   `json:"byStatus"`
	ByCategory   map[models.IssueCategory]int `json:"byCategory"`
}

// AggregateStatistics reads every issue and user once and counts them by status and by
// category in a single pass.
func (s *Service) AggregateStatistics(ctx context.Context, session *access.Session) (*Statistics, error) {
	if err := s.gate.Authorize(ctx, session, access.ReadStatistics()); err != nil {
		return nil, err
	}
	issues, err := s.issues.All(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalIssues: len(issues),
		TotalUsers:  users,
		ByStatus:    make(map[models.IssueStatus]int, len(models.Statuses)),
		ByCategory:  make(map[models.IssueCategory]int, len(models.Categories)),
	}
	for _, st := range models.Statuses {
		stats.ByStatus[st] = 0
	}
	for _, c := range models.Categories {
		stats.ByCategory[c] = 0
	}
	for _, issue := range issues {
		stats.ByStatus[issue.Status]++
		stats.ByCategory[issue.Category]++
		stats.TotalUpvotes += issue.Upvotes
	}
	return stats, nil
}
