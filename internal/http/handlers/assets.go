package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// StaticFile serves a stored render when the URL's HMAC token checks out.
// The token and expiry come from storage.FileStore.Sign.
func (a *App) StaticFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "expires must be a unix timestamp")
		return
	}
	sig := r.URL.Query().Get("sig")
	if !a.Files.Verify(key, expires, sig) {
		a.error(w, http.StatusForbidden, "forbidden", "link is invalid or expired")
		return
	}

	f, err := a.Files.Open(key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	if _, err := io.Copy(w, f); err != nil {
		a.Logger.Debug().Err(err).Str("key", key).Msg("static file copy interrupted")
	}
}
