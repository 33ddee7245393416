package analysis

import "context"

// Analyzer port for the external generative-AI service. Both operations are
// single-shot: retry policy, if any, belongs to the caller.
type Analyzer interface {
	// Analyze extracts a structured Record from raw PDF bytes.
	Analyze(ctx context.Context, document []byte) (*Record, error)
	// Translate returns a Record with the same structure and the
	// natural-language values translated into targetLanguage.
	Translate(ctx context.Context, record *Record, targetLanguage string) (*Record, error)
}

// Repository port for persisting and querying analysis history
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	Paginate(ctx context.Context, page, pageSize int) ([]*Analysis, error)
}
