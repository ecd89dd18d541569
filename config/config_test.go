package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "mydb", c.MongoDatabase)
	assert.Equal(t, 72*time.Hour, c.TokenTTL)
	assert.Equal(t, 5, c.IssueDailyLimit)
	assert.Equal(t, "issue_limit", c.IssueLimitQueue)
	assert.Equal(t, ObjectStoreLocal, c.ObjectStore)
	assert.Equal(t, int64(10<<20), c.UploadMaxImageBytes)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	assert.False(t, c.Production())
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GO_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ISSUE_DAILY_LIMIT", "10")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("OBJECT_STORE", "Cloudinary")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_UPLOAD_PRESET", "unsigned")
	t.Setenv("UPLOAD_TIMEOUT", "15s")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.Production())
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
	assert.Equal(t, 10, c.IssueDailyLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.Equal(t, ObjectStoreCloudinary, c.ObjectStore)
	assert.Equal(t, 15*time.Second, c.UploadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"unknown object store", map[string]string{"JWT_SECRET": "x", "OBJECT_STORE": "s3"}},
		{"gridfs without mongo", map[string]string{"JWT_SECRET": "x", "OBJECT_STORE": "gridfs"}},
		{"cloudinary without preset", map[string]string{"JWT_SECRET": "x", "OBJECT_STORE": "cloudinary", "CLOUDINARY_CLOUD_NAME": "demo"}},
		{"otel without endpoint", map[string]string{"JWT_SECRET": "x", "OTEL_ENABLED": "true"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "TOKEN_TTL": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConnectDB_RequiresURI(t *testing.T) {
	_, _, err := ConnectDB(context.Background(), "", "mydb")
	assert.ErrorContains(t, err, "MONGODB_URI")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
