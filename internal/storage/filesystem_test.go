package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), "http://localhost:8080/static", "test-sign-key")
	require.NoError(t, err)
	return fs
}

func TestStoreDownloadsResult(t *testing.T) {
	payload := []byte("fake mp4 bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fs := newTestStore(t)
	ownerID, jobID := uuid.New(), uuid.New()

	key, err := fs.Store(context.Background(), srv.URL+"/result.mp4", ownerID, jobID)
	require.NoError(t, err)
	assert.Equal(t, "generated/videos/"+ownerID.String()+"/"+jobID.String()+".mp4", key)

	got, err := os.ReadFile(filepath.Join(fs.basePath, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStoreRejectsBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fs := newTestStore(t)
	_, err := fs.Store(context.Background(), srv.URL+"/gone.mp4", uuid.New(), uuid.New())
	assert.Error(t, err)

	_, err = fs.Store(context.Background(), "  ", uuid.New(), uuid.New())
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs.now = func() time.Time { return fixed }

	signed, err := fs.Sign("generated/videos/o/j.mp4", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	sig := u.Query().Get("sig")

	assert.Equal(t, fixed.Add(time.Hour).Unix(), expires)
	assert.True(t, fs.Verify("generated/videos/o/j.mp4", expires, sig))

	// Wrong key, tampered expiry, and expiry in the past all fail.
	assert.False(t, fs.Verify("generated/videos/o/other.mp4", expires, sig))
	assert.False(t, fs.Verify("generated/videos/o/j.mp4", expires+1, sig))

	fs.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	assert.False(t, fs.Verify("generated/videos/o/j.mp4", expires, sig))
}

func TestSignatureBoundToKey(t *testing.T) {
	fs := newTestStore(t)
	other, err := NewFileStore(t.TempDir(), "http://localhost:8080/static", "different-key")
	require.NoError(t, err)

	signed, err := fs.Sign("generated/videos/o/j.mp4", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	expires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)

	assert.False(t, other.Verify("generated/videos/o/j.mp4", expires, u.Query().Get("sig")))
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "generated/videos/a/b.mp4", want: "generated/videos/a/b.mp4"},
		{key: "/leading/slash.mp4", want: "leading/slash.mp4"},
		{key: "a/./b.mp4", want: "a/b.mp4"},
		{key: "../escape.mp4", wantErr: true},
		{key: "a/../../escape.mp4", wantErr: true},
		{key: "", wantErr: true},
		{key: "   ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.key)
		if tc.wantErr {
			assert.Error(t, err, "key=%q", tc.key)
			continue
		}
		require.NoError(t, err, "key=%q", tc.key)
		assert.Equal(t, tc.want, got)
	}
}

func TestOpenRefusesTraversal(t *testing.T) {
	fs := newTestStore(t)
	_, err := fs.Open("../../etc/passwd")
	assert.Error(t, err)
}
