// Package repository maps the typed records in models onto store documents.
package repository

import (
	"context"
	"fmt"
	"sort"

	"fixmyarea-be/models"
	"fixmyarea-be/store"
)

type IssueRepository struct {
	store store.Store
}

func NewIssueRepository(s store.Store) *IssueRepository {
	return &IssueRepository{store: s}
}

// Create stores issue and fills in the generated id.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	doc, err := store.Encode(issue)
	if err != nil {
		return err
	}
	id, err := r.store.Create(ctx, store.CollectionIssues, issue.ID, doc)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	issue.ID = id
	return nil
}

func (r *IssueRepository) Get(ctx context.Context, id string) (*models.Issue, error) {
	doc, err := r.store.Get(ctx, store.CollectionIssues, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	return decodeIssue(doc)
}

// UpdateStatus moves the issue from one status to another, writing status and lastUpdated
// together. It fails with store.ErrStale when the issue is no longer in from.
func (r *IssueRepository) UpdateStatus(ctx context.Context, id string, from, to models.IssueStatus, lastUpdated int64) error {
	err := r.store.UpdateIf(ctx, store.CollectionIssues, id, store.Document{
		models.FieldIssueStatus: string(from),
	}, store.Document{
		models.FieldIssueStatus:      string(to),
		models.FieldIssueLastUpdated: lastUpdated,
	})
	if err != nil {
		return fmt.Errorf("update issue %s status: %w", id, err)
	}
	return nil
}

// AdjustUpvotes moves the upvote counter by delta. The counter never drops below zero.
func (r *IssueRepository) AdjustUpvotes(ctx context.Context, id string, delta int64) error {
	if err := r.store.Increment(ctx, store.CollectionIssues, id, models.FieldIssueUpvotes, delta); err != nil {
		return fmt.Errorf("adjust upvotes on %s: %w", id, err)
	}
	return nil
}

// ListBy returns issues whose field equals value, newest first.
func (r *IssueRepository) ListBy(ctx context.Context, field string, value any) ([]*models.Issue, error) {
	docs, err := r.store.QueryEqual(ctx, store.CollectionIssues, field, value)
	if err != nil {
		return nil, fmt.Errorf("list issues by %s: %w", field, err)
	}
	return decodeIssues(docs)
}

// All returns every issue, newest first.
func (r *IssueRepository) All(ctx context.Context) ([]*models.Issue, error) {
	docs, err := r.store.GetAll(ctx, store.CollectionIssues)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return decodeIssues(docs)
}

func decodeIssue(doc store.Document) (*models.Issue, error) {
	var issue models.Issue
	if err := store.Decode(doc, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func decodeIssues(docs []store.Document) ([]*models.Issue, error) {
	issues := make([]*models.Issue, 0, len(docs))
	for _, doc := range docs {
		issue, err := decodeIssue(doc)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Timestamp > issues[j].Timestamp
	})
	return issues, nil
}
