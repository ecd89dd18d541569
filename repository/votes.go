package repository

import (
	"context"
	"errors"
	"fmt"

	"fixmyarea-be/models"
	"fixmyarea-be/store"
)

// VoteRepository records one vote per (issue, user) pair. The pair is the document id,
// so the store's id uniqueness enforces the rule.
type VoteRepository struct {
	store store.Store
}

func NewVoteRepository(s store.Store) *VoteRepository {
	return &VoteRepository{store: s}
}

// Cast records a vote and reports whether it is new.
func (r *VoteRepository) Cast(ctx context.Context, issueID, userID string, at int64) (bool, error) {
	vote := models.Vote{
		ID:        models.VoteID(issueID, userID),
		Issue:     issueID,
		User:      userID,
		CreatedAt: at,
	}
	doc, err := store.Encode(vote)
	if err != nil {
		return false, err
	}
	_, err = r.store.Create(ctx, store.CollectionVotes, vote.ID, doc)
	switch {
	case errors.Is(err, store.ErrConflict):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cast vote: %w", err)
	}
	return true, nil
}

// Retract removes a vote and reports whether one existed.
func (r *VoteRepository) Retract(ctx context.Context, issueID, userID string) (bool, error) {
	err := r.store.Delete(ctx, store.CollectionVotes, models.VoteID(issueID, userID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("retract vote: %w", err)
	}
	return true, nil
}

func (r *VoteRepository) Exists(ctx context.Context, issueID, userID string) (bool, error) {
	_, err := r.store.Get(ctx, store.CollectionVotes, models.VoteID(issueID, userID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup vote: %w", err)
	}
	return true, nil
}
