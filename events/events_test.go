package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, payload any) error {
	return m.Called(ctx, key, payload).Error(0)
}

func TestEmit_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	pub := new(MockPublisher)
	evt := UserDeletedEvent{UserID: "u1", ActorID: "a1"}
	pub.On("Publish", mock.Anything, UserDeleted, evt).Return(errors.New("channel closed"))

	Emit(context.Background(), pub, log, UserDeleted, evt)

	pub.AssertExpectations(t)
	assert.Contains(t, buf.String(), "failed to publish event")
	assert.Contains(t, buf.String(), "key=user.deleted")
}

func TestEmit_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, slog.Default(), IssueReported, IssueReportedEvent{})
	})
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.NoError(t, p.Publish(context.Background(), IssueUpvoted, IssueUpvotedEvent{IssueID: "i1", UserID: "u1", Voted: true}))
	assert.Contains(t, buf.String(), "key=issue.upvoted")
}
