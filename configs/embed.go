// Package configs provides embedded configuration templates for lentra.
//
// Templates are embedded at build time with go:embed so they ship with
// every distribution of the binary. `lentra init` writes ConfigTemplate
// to lentra.yaml in the working directory.
package configs

import _ "embed"

// ConfigTemplate is the commented starter configuration written by
// `lentra init`.
//
//go:embed lentra.example.yaml
var ConfigTemplate string
