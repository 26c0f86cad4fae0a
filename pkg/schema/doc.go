// Package schema models the consultation template served by the backend:
// sections hold items, items hold typed fields. The package decodes the
// template fetch response, validates it against the published response
// contract, and enforces the template invariants (unique identifiers,
// resolvable formulas, canonical units drawn from the supported list).
//
// A decoded Template is immutable and may be shared by every open form.
package schema
