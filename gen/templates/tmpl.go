package templates

import "embed"

//go:embed *.go.tmpl
var Templates embed.FS
