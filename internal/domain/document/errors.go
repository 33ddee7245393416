package document

import "errors"

// ErrLoad indicates malformed or non-PDF input.
var ErrLoad = errors.New("document load failed")

// ErrPageOutOfRange indicates a page number outside [1, pageCount].
var ErrPageOutOfRange = errors.New("page out of range")

// ErrRenderCancelled indicates a render superseded by a newer request.
// Treated as a silent no-op by callers, never surfaced to the user.
var ErrRenderCancelled = errors.New("render cancelled")
