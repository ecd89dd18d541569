package controllers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"fixmyarea-be/access"
	"fixmyarea-be/lifecycle"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/submission"
	"fixmyarea-be/upload"

	"github.com/gin-gonic/gin"
)

type IssueService interface {
	ReportIssue(ctx context.Context, session *access.Session, fields submission.ReportFields, images []objectstore.Blob, progress upload.ProgressFunc) (*submission.Receipt, error)
	ModerateIssue(ctx context.Context, session *access.Session, issueID string, requested models.IssueStatus) (*models.Issue, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, f submission.IssueFilter) ([]*models.Issue, error)
	ToggleUpvote(ctx context.Context, session *access.Session, issueID string) (*submission.UpvoteResult, error)
	HasVoted(ctx context.Context, session *access.Session, issueID string) (bool, error)
	AggregateStatistics(ctx context.Context, session *access.Session) (*submission.Statistics, error)
}

type IssueController struct {
	issues        IssueService
	log           *slog.Logger
	uploadTimeout time.Duration
	maxImageBytes int64
}

func NewIssueController(svc IssueService, log *slog.Logger, uploadTimeout time.Duration, maxImageBytes int64) *IssueController {
	if maxImageBytes <= 0 {
		maxImageBytes = objectstore.DefaultMaxBytes
	}
	return &IssueController{issues: svc, log: log, uploadTimeout: uploadTimeout, maxImageBytes: maxImageBytes}
}

const multipartOverhead = 1 << 20

// CreateIssue reads a multipart report (fields plus "images" files) and submits it. When
// the client accepts text/event-stream, upload progress is streamed as "progress" events
// followed by one "result" or "error" event.
func (h *IssueController) CreateIssue(c *gin.Context) {
	limit := h.maxImageBytes*models.MaxIssueImages + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form: " + err.Error()})
		return
	}
	fields, err := reportFields(form.Value)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	images := make([]objectstore.Blob, 0, len(form.File["images"]))
	for _, fh := range form.File["images"] {
		// size is checked per image by the object store so one oversized photo does not
		// sink the whole report
		blob, err := readBlob(fh, "images", 0)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		images = append(images, *blob)
	}

	ctx := c.Request.Context()
	if h.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.uploadTimeout)
		defer cancel()
	}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.streamReport(ctx, c, fields, images)
		return
	}

	receipt, err := h.issues.ReportIssue(ctx, session(c), fields, images, nil)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, receiptBody(receipt))
}

type reportOutcome struct {
	receipt *submission.Receipt
	err     error
}

func (h *IssueController) streamReport(ctx context.Context, c *gin.Context, fields submission.ReportFields, images []objectstore.Blob) {
	// one progress value per image at most, so sends never block
	progress := make(chan int, len(images)+1)
	done := make(chan reportOutcome, 1)
	s := session(c)
	go func() {
		receipt, err := h.issues.ReportIssue(ctx, s, fields, images, func(p int) { progress <- p })
		close(progress)
		done <- reportOutcome{receipt: receipt, err: err}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		if p, ok := <-progress; ok {
			c.SSEvent("progress", gin.H{"percent": p})
			return true
		}
		out := <-done
		if out.err != nil {
			status, body := errorBody(out.err)
			body["status"] = status
			if status >= http.StatusInternalServerError {
				h.log.Error("issue report failed", "error", out.err)
			}
			c.SSEvent("error", body)
			return false
		}
		c.SSEvent("result", receiptBody(out.receipt))
		return false
	})
}

func receiptBody(r *submission.Receipt) gin.H {
	return gin.H{
		"issue":     r.Issue,
		"issueId":   r.IssueID,
		"requested": r.Requested,
		"uploaded":  r.Uploaded,
		"partial":   r.Partial(),
		"failures":  r.Failures,
	}
}

func reportFields(values map[string][]string) (submission.ReportFields, error) {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	fields := submission.ReportFields{
		Title:       get("title"),
		Description: get("description"),
		Category:    models.IssueCategory(get("category")),
		Location:    get("location"),
	}
	var err error
	if fields.Latitude, err = optionalFloat("latitude", get("latitude")); err != nil {
		return fields, err
	}
	if fields.Longitude, err = optionalFloat("longitude", get("longitude")); err != nil {
		return fields, err
	}
	return fields, nil
}

func optionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, models.Invalid(field, "must be a number")
	}
	return &v, nil
}

// GetAllIssues handles retrieving issues with filtering, search, sorting and pagination
func (h *IssueController) GetAllIssues(c *gin.Context) {
	filter := submission.IssueFilter{ReporterID: c.Query("reporterId")}
	if category := c.Query("category"); category != "" && category != "all" {
		filter.Category = models.IssueCategory(strings.ToLower(category))
	}
	if status := c.Query("status"); status != "" && status != "all" {
		filter.Status = models.IssueStatus(strings.ToLower(status))
	}
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))
	order := c.DefaultQuery("sort", "newest")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	issues, err := h.issues.ListIssues(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if search != "" {
		matched := issues[:0]
		for _, issue := range issues {
			if strings.Contains(strings.ToLower(issue.Title), search) ||
				strings.Contains(strings.ToLower(issue.Description), search) {
				matched = append(matched, issue)
			}
		}
		issues = matched
	}

	switch order {
	case "oldest":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Timestamp < issues[j].Timestamp })
	case "votes":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Upvotes > issues[j].Upvotes })
	}

	total := len(issues)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"issues":      issues[start:end],
		"totalIssues": total,
		"totalPages":  (total + limit - 1) / limit,
		"currentPage": page,
	})
}

// GetIssue retrieves an issue with the caller's vote state and the statuses it can move to
func (h *IssueController) GetIssue(c *gin.Context) {
	issue, err := h.issues.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	userHasVoted := false
	if s := session(c); s != nil {
		if voted, err := h.issues.HasVoted(c.Request.Context(), s, issue.ID); err == nil {
			userHasVoted = voted
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"issue":        issue,
		"userHasVoted": userHasVoted,
		"actions":      lifecycle.Actions(issue.Status),
	})
}

// UpdateIssueStatus moves an issue through the moderation workflow
func (h *IssueController) UpdateIssueStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.issues.ModerateIssue(c.Request.Context(), session(c), c.Param("id"), models.IssueStatus(strings.ToLower(input.Status)))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"issue":   issue,
		"actions": lifecycle.Actions(issue.Status),
	})
}

// HandleVoteOnIssue casts the caller's vote, or removes it when already cast
func (h *IssueController) HandleVoteOnIssue(c *gin.Context) {
	res, err := h.issues.ToggleUpvote(c.Request.Context(), session(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	message := "Vote cast successfully"
	if !res.Voted {
		message = "Vote removed successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      message,
		"voted":        res.Voted,
		"votes":        res.Upvotes,
		"userHasVoted": res.Voted,
	})
}

// GetIssueAnalytics returns system-wide counts for the admin dashboard
func (h *IssueController) GetIssueAnalytics(c *gin.Context) {
	stats, err := h.issues.AggregateStatistics(c.Request.Context(), session(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
