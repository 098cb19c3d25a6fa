package chart

import (
	"embed"
	"html/template"
)

//go:embed index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "index.html"))
