// Package web embeds the editor page template and its static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

// EditorTemplate is the name of the editor page template.
const EditorTemplate = "editor.html.tmpl"

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// Templates parses the embedded HTML templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.tmpl")
}

// Assets returns the static asset tree rooted at the assets directory.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		// fs.Sub only fails on an invalid path, and "assets" is a literal.
		panic(err)
	}
	return sub
}

// Favicon returns the favicon bytes.
func Favicon() ([]byte, error) {
	return fs.ReadFile(assetFS, "assets/favicon.ico")
}

// EditorPage is the data rendered into EditorTemplate.
type EditorPage struct {
	// Title is the page title and og:title.
	Title string
	// URL is the public base URL, ending in "/".
	URL string
	// ID is the configuration id being edited, empty for a new one.
	ID string
	// Config is the YAML text placed in the editor.
	Config string
}
