package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#1a1530"/><circle cx="100" cy="80" r="34" fill="#6d5bb8"/><path d="M40 170c0-33 27-54 60-54s60 21 60 54" fill="#6d5bb8"/><text x="100" y="192" text-anchor="middle" font-family="Arial" font-size="13" fill="#bfb3ec">ASTROLOGER</text></svg>`

// StaticFileServer serves astrologer avatar images, falling back to a
// placeholder when no upload exists.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
