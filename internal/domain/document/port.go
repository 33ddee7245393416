package document

import "context"

// Zoom bounds for page rendering
const (
	MinZoom = 0.5
	MaxZoom = 3.0
)

// Document is one opened PDF. Close releases the underlying engine
// resources; it must be safe to call exactly once per open.
type Document interface {
	PageCount() int
	// RenderPage rasterizes one page to PNG bytes at the given zoom scale.
	// Fails with ErrPageOutOfRange when page is outside [1, PageCount];
	// returns ErrRenderCancelled when ctx is cancelled mid-render.
	RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error)
	Close() error
}

// Engine port wrapping the external PDF renderer. Reusable across repeated
// opens; each Open returns an independent Document.
type Engine interface {
	Open(data []byte) (Document, error)
}

// ArchiveStore port for keeping a copy of uploaded papers in object
// storage. Returns the stored object's URL.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ClampZoom forces z into [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
