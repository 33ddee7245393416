package papers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperlens/paperlens/internal/application"
	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/domain/document"
)

// Session status values. A session only exists once a file was accepted, so
// the no-document state is simply the absence of a session.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotReady            = errors.New("analysis not ready")
	ErrTranslationInFlight = errors.New("translation already in flight")
	ErrPreviewUnavailable  = errors.New("document preview unavailable")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// missingCredentialMessage is the user-legible substitute shown when the
// analysis fails because no API credential is configured.
const missingCredentialMessage = "AI credential is not configured. Set ai.gemini.api_key or ai.openai.api_key in config.yaml and restart."

// session owns all state for one selected document, from upload to
// replacement or reset.
type session struct {
	id       string
	filename string

	mu sync.Mutex

	doc         document.Document // nil when the preview open failed
	pageCount   int
	currentPage int
	zoom        float64

	status        Status
	failureReason string

	primary     *analysis.Record
	translated  *analysis.Record
	activeLang  analysis.Language
	translating bool

	// monotonically increasing render token; only the result of the
	// latest issued render is ever applied
	renderSeq    uint64
	renderCancel context.CancelFunc

	lastActive time.Time
	closed     bool
}

// Snapshot is the read-only view of a session handed to the HTTP layer.
type Snapshot struct {
	SessionID      string            `json:"session_id"`
	Filename       string            `json:"filename"`
	Status         Status            `json:"status"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	PageCount      int               `json:"page_count"`
	CurrentPage    int               `json:"current_page"`
	Zoom           float64           `json:"zoom"`
	ActiveLanguage analysis.Language `json:"active_language"`
	Translating    bool              `json:"translating"`
	HasTranslation bool              `json:"has_translation"`
	Record         *analysis.Record  `json:"record,omitempty"`
}

func (s *session) snapshot() *Snapshot {
	snap := &Snapshot{
		SessionID:      s.id,
		Filename:       s.filename,
		Status:         s.status,
		FailureReason:  s.failureReason,
		PageCount:      s.pageCount,
		CurrentPage:    s.currentPage,
		Zoom:           s.zoom,
		ActiveLanguage: s.activeLang,
		Translating:    s.translating,
		HasTranslation: s.translated != nil,
	}
	if s.activeLang == analysis.LanguageTarget {
		snap.Record = s.translated
	} else {
		snap.Record = s.primary
	}
	return snap
}

// release closes the preview resources exactly once and invalidates any
// in-flight render.
func (s *session) release() {
	if s.closed {
		return
	}
	s.closed = true
	s.renderSeq++
	if s.renderCancel != nil {
		s.renderCancel()
		s.renderCancel = nil
	}
	if s.doc != nil {
		if err := s.doc.Close(); err != nil {
			log.Printf("session=%s close document error: %v", s.id, err)
		}
		s.doc = nil
	}
}

// Service drives the renderer and the analysis client and owns the
// per-session state machine. Safe for concurrent use.
type Service struct {
	Engine         document.Engine
	Analyzer       analysis.Analyzer
	History        analysis.Repository   // optional
	Archive        document.ArchiveStore // optional
	Clock          application.Clock
	TargetLanguage string // e.g. "Indonesian"
	SessionTTL     time.Duration

	// OnAnalyzeFailed, when set, is invoked once per failed analysis.
	OnAnalyzeFailed func()

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewService(engine document.Engine, analyzer analysis.Analyzer, clock application.Clock, targetLanguage string) *Service {
	if targetLanguage == "" {
		targetLanguage = "Indonesian"
	}
	s := &Service{
		Engine:         engine,
		Analyzer:       analyzer,
		Clock:          clock,
		TargetLanguage: targetLanguage,
		SessionTTL:     30 * time.Minute,
		sessions:       make(map[string]*session),
	}
	go s.janitor()
	return s
}

// Open starts a new session for an uploaded paper: the preview document is
// opened synchronously, the analysis runs in the background. A renderer
// failure is logged and leaves the preview unavailable without blocking
// the analysis.
func (s *Service) Open(ctx context.Context, filename string, data []byte) (*Snapshot, error) {
	sess := &session{
		id:          uuid.New().String(),
		filename:    filename,
		status:      StatusLoading,
		activeLang:  analysis.LanguageSource,
		currentPage: 1,
		zoom:        1.0,
		lastActive:  s.Clock.Now(),
	}

	// A preview failure is logged and leaves the preview unavailable; it
	// never blocks the analysis. Non-PDF uploads are rejected before this
	// point by the HTTP layer.
	doc, err := s.Engine.Open(data)
	if err != nil {
		log.Printf("session=%s preview open error: %v", sess.id, err)
	} else {
		sess.doc = doc
		sess.pageCount = doc.PageCount()
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	// Analysis continues past the request lifetime, so it gets a fresh
	// context rather than the request's.
	go s.analyze(context.Background(), sess, data)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// analyze runs the single analysis pass for a session. Invoked exactly once
// per Open; there is no other call site.
func (s *Service) analyze(ctx context.Context, sess *session, data []byte) {
	if s.Archive != nil {
		key := fmt.Sprintf("papers/%s/%s", sess.id, sess.filename)
		if _, err := s.Archive.Upload(ctx, key, data, "application/pdf"); err != nil {
			log.Printf("session=%s archive upload error: %v", sess.id, err)
		}
	}

	record, err := s.Analyzer.Analyze(ctx, data)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	if err != nil {
		sess.status = StatusFailed
		if errors.Is(err, analysis.ErrMissingCredential) {
			sess.failureReason = missingCredentialMessage
		} else {
			sess.failureReason = err.Error()
		}
		log.Printf("session=%s analyze failed: %v", sess.id, err)
		if s.OnAnalyzeFailed != nil {
			s.OnAnalyzeFailed()
		}
		return
	}

	sess.status = StatusReady
	sess.primary = record
	s.persist(ctx, sess, record, analysis.LanguageSource)
}

// persist saves a record to history when a repository is configured. Never
// fatal: history is an audit trail, not part of the session state machine.
// Caller holds sess.mu.
func (s *Service) persist(ctx context.Context, sess *session, record *analysis.Record, lang analysis.Language) {
	if s.History == nil {
		return
	}
	resultJSON, err := json.Marshal(record)
	if err != nil {
		log.Printf("session=%s marshal history record: %v", sess.id, err)
		return
	}
	entry := &analysis.Analysis{
		ID:        analysis.AnalysisID(uuid.New().String()),
		SessionID: sess.id,
		Filename:  sess.filename,
		Language:  lang,
		Result:    string(resultJSON),
		CreatedAt: s.Clock.Now(),
	}
	if err := s.History.Save(ctx, entry); err != nil {
		log.Printf("session=%s save history error: %v", sess.id, err)
	}
}

// Get returns the current state snapshot for a session.
func (s *Service) Get(id string) (*Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActive = s.Clock.Now()
	return sess.snapshot(), nil
}

// RenderPage renders one page at the given zoom. A request issued while a
// previous render is still running cancels it; only the most recent
// request's result is ever applied (last-writer-wins via the sequence
// token). Superseded renders surface as document.ErrRenderCancelled, which
// callers treat as a silent no-op.
func (s *Service) RenderPage(ctx context.Context, id string, page int, zoom float64) ([]byte, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.doc == nil {
		sess.mu.Unlock()
		return nil, ErrPreviewUnavailable
	}
	if page < 1 || page > sess.pageCount {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: page %d of %d", document.ErrPageOutOfRange, page, sess.pageCount)
	}
	zoom = document.ClampZoom(zoom)

	// Supersede any render still in flight before starting this one.
	sess.renderSeq++
	token := sess.renderSeq
	if sess.renderCancel != nil {
		sess.renderCancel()
	}
	renderCtx, cancel := context.WithCancel(ctx)
	sess.renderCancel = cancel
	doc := sess.doc
	sess.lastActive = s.Clock.Now()
	sess.mu.Unlock()

	bitmap, err := doc.RenderPage(renderCtx, page, zoom)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if token != sess.renderSeq || sess.closed {
		// A newer request took over while this one was rendering.
		return nil, document.ErrRenderCancelled
	}
	sess.renderCancel = nil
	cancel()
	if err != nil {
		if !errors.Is(err, document.ErrRenderCancelled) {
			log.Printf("session=%s render page=%d zoom=%.2f error: %v", sess.id, page, zoom, err)
		}
		return nil, err
	}

	sess.currentPage = page
	sess.zoom = zoom
	return bitmap, nil
}

// ToggleLanguage switches the active language of a Ready session. The first
// switch to the target language invokes the translator once and caches the
// result; every later toggle in either direction is local. A translation
// failure leaves the active language and the primary record untouched.
func (s *Service) ToggleLanguage(ctx context.Context, id string, target analysis.Language) (*Snapshot, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, target)
	}
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.lastActive = s.Clock.Now()
	if sess.status != StatusReady {
		sess.mu.Unlock()
		return nil, ErrNotReady
	}
	if target == sess.activeLang {
		defer sess.mu.Unlock()
		return sess.snapshot(), nil
	}
	if target == analysis.LanguageSource {
		sess.activeLang = analysis.LanguageSource
		defer sess.mu.Unlock()
		return sess.snapshot(), nil
	}
	if sess.translated != nil {
		// cache hit: zero remote calls
		sess.activeLang = analysis.LanguageTarget
		defer sess.mu.Unlock()
		return sess.snapshot(), nil
	}
	if sess.translating {
		sess.mu.Unlock()
		return nil, ErrTranslationInFlight
	}
	sess.translating = true
	primary := sess.primary
	sess.mu.Unlock()

	record, err := s.Analyzer.Translate(ctx, primary, s.TargetLanguage)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.translating = false
	if err != nil {
		log.Printf("session=%s translate failed: %v", sess.id, err)
		return nil, err
	}
	sess.translated = record
	sess.activeLang = analysis.LanguageTarget
	s.persist(ctx, sess, record, analysis.LanguageTarget)
	return sess.snapshot(), nil
}

// Reset tears a session down and releases its document resources.
func (s *Service) Reset(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	sess.release()
	sess.mu.Unlock()
	return nil
}

func (s *Service) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// janitor evicts sessions idle longer than SessionTTL so abandoned previews
// do not pin MuPDF handles.
func (s *Service) janitor() {
	if s.SessionTTL <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := s.Clock.Now().Add(-s.SessionTTL)

		s.mu.Lock()
		var stale []*session
		for id, sess := range s.sessions {
			sess.mu.Lock()
			idle := sess.lastActive.Before(cutoff) && !sess.translating
			sess.mu.Unlock()
			if idle {
				stale = append(stale, sess)
				delete(s.sessions, id)
			}
		}
		s.mu.Unlock()

		for _, sess := range stale {
			sess.mu.Lock()
			sess.release()
			sess.mu.Unlock()
			log.Printf("session=%s evicted after idle timeout", sess.id)
		}
	}
}
