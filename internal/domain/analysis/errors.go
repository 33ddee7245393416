package analysis

import "errors"

// ErrMissingCredential indicates no API credential is configured. Checked
// before any network attempt.
var ErrMissingCredential = errors.New("ai credential not configured")

// ErrUpstream indicates the remote AI call failed or returned no content.
var ErrUpstream = errors.New("ai upstream error")

// ErrSchemaViolation indicates the AI payload could not be parsed into the
// five required fields.
var ErrSchemaViolation = errors.New("ai response violates schema")
