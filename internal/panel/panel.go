package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// indexFile is served for the root and for every path that is not an asset.
const indexFile = "index.html"

// Handler returns an http.Handler for the dashboard assets.
//
// When dir names an existing directory, assets are read from disk on every
// request. Otherwise the embedded build is used.
// Panics if the embedded assets are missing, which is a build error.
func Handler(dir string) http.Handler {
	assets := assetFS(dir)
	fileServer := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(r.URL.Path)
		if name == "." || name == "/" {
			serveIndex(w, r, fileServer)
			return
		}

		info, err := fs.Stat(assets, name[1:])
		if err != nil || info.IsDir() {
			serveIndex(w, r, fileServer)
			return
		}

		// Asset names are not content-hashed, so browsers must revalidate.
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, fileServer http.Handler) {
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	fileServer.ServeHTTP(w, r2)
}

func assetFS(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: embedded assets unavailable: %v", err))
	}
	if _, err := fs.Stat(sub, indexFile); err != nil {
		panic(fmt.Sprintf("panel: embedded %s missing: %v", indexFile, err))
	}
	return sub
}
