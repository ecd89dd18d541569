package lifecycle

import (
	"testing"
	"time"

	"fixmyarea-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]models.IssueStatus]bool{
		{models.Pending, models.Approved}:    true,
		{models.Pending, models.Rejected}:    true,
		{models.Approved, models.InProgress}: true,
		{models.Approved, models.Resolved}:   true,
		{models.InProgress, models.Resolved}: true,
	}
	m := New(nil)
	for _, from := range models.Statuses {
		for _, to := range models.Statuses {
			err := m.Validate(from, to)
			if allowed[[2]models.IssueStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	m := New(nil)
	err := m.Validate(models.Pending, "archived")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestApply_StampsLastUpdated(t *testing.T) {
	now := time.UnixMilli(5_000)
	m := New(func() time.Time { return now })

	issue := &models.Issue{Status: models.Pending, Timestamp: 1_000, LastUpdated: 1_000}
	require.NoError(t, m.Apply(issue, models.Approved))
	assert.Equal(t, models.Approved, issue.Status)
	assert.Equal(t, int64(5_000), issue.LastUpdated)

	// clock did not move; stamp still advances
	require.NoError(t, m.Apply(issue, models.Resolved))
	assert.Equal(t, int64(5_001), issue.LastUpdated)
}

func TestApply_RejectedLeavesIssueUntouched(t *testing.T) {
	m := New(nil)
	issue := &models.Issue{Status: models.Resolved, LastUpdated: 42}
	err := m.Apply(issue, models.Resolved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.Resolved, issue.Status)
	assert.Equal(t, int64(42), issue.LastUpdated)
}

func TestActionsAndTerminal(t *testing.T) {
	assert.Equal(t, []models.IssueStatus{models.Approved, models.Rejected}, Actions(models.Pending))
	assert.Equal(t, []models.IssueStatus{models.Resolved}, Actions(models.InProgress))
	assert.Empty(t, Actions(models.Rejected))
	assert.True(t, Terminal(models.Resolved))
	assert.True(t, Terminal(models.Rejected))
	assert.False(t, Terminal(models.Approved))
}
