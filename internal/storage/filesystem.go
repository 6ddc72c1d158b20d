package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore copies finished renders out of the provider's transient CDN
// and hands out temporary URLs. Failures here are non-fatal: callers fall
// back to the provider URL.
type ObjectStore interface {
	Store(ctx context.Context, resultURL string, ownerID, jobID uuid.UUID) (string, error)
	Sign(storageKey string, ttl time.Duration) (string, error)
}

// FileStore persists renders onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available.
type FileStore struct {
	basePath string
	baseURL  string
	signKey  []byte
	client   *http.Client
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath. Signed URLs are
// served under baseURL.
func NewFileStore(basePath, baseURL, signKey string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		signKey:  []byte(signKey),
		client:   &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
	}, nil
}

// Store downloads the provider's result and writes it under a key derived
// from the owner and job. Returns the storage key.
func (s *FileStore) Store(ctx context.Context, resultURL string, ownerID, jobID uuid.UUID) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if strings.TrimSpace(resultURL) == "" {
		return "", errors.New("storage: result url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage: download result: status %d", resp.StatusCode)
	}

	key := fmt.Sprintf("generated/videos/%s/%s.mp4", ownerID, jobID)
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Sign returns a temporary URL for the key, valid for ttl. The token is an
// HMAC over key and expiry, checked by the static file handler.
func (s *FileStore) Sign(storageKey string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(storageKey)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	token := s.token(cleanKey, expires)
	return fmt.Sprintf("%s/%s?expires=%d&sig=%s", s.baseURL, cleanKey, expires, url.QueryEscape(token)), nil
}

// Verify checks a signed URL's token and expiry.
func (s *FileStore) Verify(storageKey string, expires int64, sig string) bool {
	cleanKey, err := sanitizeKey(storageKey)
	if err != nil {
		return false
	}
	if s.now().Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(s.token(cleanKey, expires)), []byte(sig))
}

// Open returns the stored file for serving.
func (s *FileStore) Open(storageKey string) (*os.File, error) {
	cleanKey, err := sanitizeKey(storageKey)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
}

func (s *FileStore) token(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	mac.Write([]byte(key))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, "/../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return clean, nil
}

var _ ObjectStore = (*FileStore)(nil)
