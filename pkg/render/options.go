package render

// RenderOptions carry per-request data that does not belong in the session.
type RenderOptions struct {
	// Action is the form submission target. Empty renders no form element.
	Action string
	// Method defaults to POST.
	Method string
	// Hidden inputs emitted with the form, for example CSRF tokens.
	Hidden map[string]string
	// Errors are server-side messages keyed by field path, merged with the
	// session's own validation errors.
	Errors map[string][]string
}
