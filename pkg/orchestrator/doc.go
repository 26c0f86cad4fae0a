// Package orchestrator wires the loader, catalog, session controller and
// renderer registry behind a single entry point, and keeps open sessions
// addressable by ID for request/response surfaces such as the preview server.
package orchestrator
