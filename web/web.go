package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var static embed.FS

// Handler serves the prediction page and its assets. Page routes all render
// index.html; the page itself talks to /api.
func Handler() http.Handler {
	assets, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/dashboard", "/pandemic/predictions":
			http.ServeFileFS(w, r, assets, "index.html")
		default:
			files.ServeHTTP(w, r)
		}
	})
}
