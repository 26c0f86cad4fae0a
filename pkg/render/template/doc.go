// Package template defines the template renderer interface shared by the
// HTML renderers, with a pongo2-backed implementation in template/pongo.
package template
