package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.c", Subject: "Reset", Text: "link"}))
	assert.Contains(t, buf.String(), "to=a@b.c")
	assert.Contains(t, buf.String(), "subject=Reset")
}
