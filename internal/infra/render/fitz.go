package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/paperlens/paperlens/internal/domain/document"
)

// baseDPI is the raster resolution at zoom 1.0.
const baseDPI = 96

// Engine opens PDF documents with MuPDF. Stateless; every Open returns an
// independent document so repeated opens never share resources.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Open validates the bytes with pdfcpu first so corrupt or non-PDF input is
// rejected before MuPDF touches it.
func (e *Engine) Open(data []byte) (document.Document, error) {
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrLoad, err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrLoad, err)
	}

	pageCount := doc.NumPage()
	if pageCount < 1 {
		doc.Close()
		return nil, fmt.Errorf("%w: document has no pages", document.ErrLoad)
	}

	return &fitzDocument{doc: doc, pageCount: pageCount}, nil
}

type fitzDocument struct {
	doc       *fitz.Document
	pageCount int

	mu        sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func (d *fitzDocument) PageCount() int { return d.pageCount }

// RenderPage rasterizes one page to PNG at 96*zoom DPI. The MuPDF call is
// synchronous; cancellation is observed at the boundaries so a superseded
// render never returns a bitmap.
func (d *fitzDocument) RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error) {
	if page < 1 || page > d.pageCount {
		return nil, fmt.Errorf("%w: page %d of %d", document.ErrPageOutOfRange, page, d.pageCount)
	}
	zoom = document.ClampZoom(zoom)

	if ctx.Err() != nil {
		return nil, document.ErrRenderCancelled
	}

	// MuPDF handles are not safe for concurrent page access.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: document closed", document.ErrLoad)
	}
	img, err := d.doc.ImageDPI(page-1, baseDPI*zoom)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	if ctx.Err() != nil {
		return nil, document.ErrRenderCancelled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}

	if ctx.Err() != nil {
		return nil, document.ErrRenderCancelled
	}
	return buf.Bytes(), nil
}

// Close releases the MuPDF handle. Safe against double release.
func (d *fitzDocument) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		err = d.doc.Close()
		d.mu.Unlock()
	})
	return err
}
