package papers_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/application"
	"github.com/paperlens/paperlens/internal/application/papers"
	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/domain/document"
)

// --- stubs ---

type fakeDoc struct {
	pages      int
	renders    int32
	closes     int32
	blockFirst bool
	started    chan struct{}
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error) {
	n := atomic.AddInt32(&d.renders, 1)
	if d.blockFirst && n == 1 {
		close(d.started)
		// Simulate a slow render that only finishes after it was
		// superseded, and misbehaves by returning a bitmap anyway. The
		// controller must still discard it.
		<-ctx.Done()
	}
	return []byte(fmt.Sprintf("page=%d zoom=%.2f", page, zoom)), nil
}

func (d *fakeDoc) Close() error {
	atomic.AddInt32(&d.closes, 1)
	return nil
}

type fakeEngine struct {
	doc *fakeDoc
	err error
}

func (e *fakeEngine) Open(data []byte) (document.Document, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.doc, nil
}

type fakeAnalyzer struct {
	analyzeCalls   int32
	translateCalls int32
	analyzeErr     error
	translateErr   error
	translateGate  chan struct{}
}

func sampleRecord() *analysis.Record {
	return &analysis.Record{
		ProblemSolved:     "slow retrieval over long documents",
		Innovations:       []string{"chunked attention", "learned index"},
		ComparisonMethods: []string{"BM25", "DPR"},
		Limitations:       []string{"English only"},
		Summary:           "a faster retriever",
	}
}

func translatedRecord() *analysis.Record {
	return &analysis.Record{
		ProblemSolved:     "pengambilan lambat pada dokumen panjang",
		Innovations:       []string{"atensi terpotong", "indeks terlatih"},
		ComparisonMethods: []string{"BM25", "DPR"},
		Limitations:       []string{"hanya bahasa Inggris"},
		Summary:           "retriever yang lebih cepat",
	}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, doc []byte) (*analysis.Record, error) {
	atomic.AddInt32(&a.analyzeCalls, 1)
	if a.analyzeErr != nil {
		return nil, a.analyzeErr
	}
	return sampleRecord(), nil
}

func (a *fakeAnalyzer) Translate(ctx context.Context, rec *analysis.Record, lang string) (*analysis.Record, error) {
	atomic.AddInt32(&a.translateCalls, 1)
	if a.translateGate != nil {
		<-a.translateGate
	}
	if a.translateErr != nil {
		return nil, a.translateErr
	}
	return translatedRecord(), nil
}

func newTestService(engine document.Engine, analyzer analysis.Analyzer) *papers.Service {
	return papers.NewService(engine, analyzer, application.SystemClock{}, "Indonesian")
}

func waitReady(t *testing.T, svc *papers.Service, id string) *papers.Snapshot {
	t.Helper()
	var snap *papers.Snapshot
	require.Eventually(t, func() bool {
		s, err := svc.Get(id)
		if err != nil {
			return false
		}
		snap = s
		return s.Status != papers.StatusLoading
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

// --- tests ---

func TestOpenAnalyzeSuccess(t *testing.T) {
	doc := &fakeDoc{pages: 3}
	az := &fakeAnalyzer{}
	svc := newTestService(&fakeEngine{doc: doc}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, papers.StatusLoading, snap.Status)
	assert.Equal(t, 3, snap.PageCount)
	assert.Equal(t, analysis.LanguageSource, snap.ActiveLanguage)

	snap = waitReady(t, svc, snap.SessionID)
	require.Equal(t, papers.StatusReady, snap.Status)
	require.NotNil(t, snap.Record)
	assert.Equal(t, "slow retrieval over long documents", snap.Record.ProblemSolved)
	assert.Len(t, snap.Record.Innovations, 2)
	assert.Len(t, snap.Record.ComparisonMethods, 2)
	assert.Len(t, snap.Record.Limitations, 1)
	assert.NotEmpty(t, snap.Record.Summary)
	assert.EqualValues(t, 1, atomic.LoadInt32(&az.analyzeCalls))
}

func TestOpenAnalyzeFailure(t *testing.T) {
	az := &fakeAnalyzer{analyzeErr: fmt.Errorf("%w: model overloaded", analysis.ErrUpstream)}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	snap = waitReady(t, svc, snap.SessionID)
	require.Equal(t, papers.StatusFailed, snap.Status)
	assert.Contains(t, snap.FailureReason, "model overloaded")
	assert.Nil(t, snap.Record)
}

func TestMissingCredentialMessage(t *testing.T) {
	az := &fakeAnalyzer{analyzeErr: analysis.ErrMissingCredential}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	snap = waitReady(t, svc, snap.SessionID)
	require.Equal(t, papers.StatusFailed, snap.Status)
	assert.Contains(t, snap.FailureReason, "not configured")
	assert.Contains(t, snap.FailureReason, "config.yaml")
}

func TestPreviewFailureDoesNotBlockAnalysis(t *testing.T) {
	az := &fakeAnalyzer{}
	svc := newTestService(&fakeEngine{err: fmt.Errorf("%w: broken xref", document.ErrLoad)}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PageCount)

	snap = waitReady(t, svc, snap.SessionID)
	assert.Equal(t, papers.StatusReady, snap.Status)

	_, err = svc.RenderPage(context.Background(), snap.SessionID, 1, 1.0)
	assert.ErrorIs(t, err, papers.ErrPreviewUnavailable)
}

func TestRenderPage(t *testing.T) {
	doc := &fakeDoc{pages: 3}
	svc := newTestService(&fakeEngine{doc: doc}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	bitmap, err := svc.RenderPage(context.Background(), snap.SessionID, 2, 1.5)
	require.NoError(t, err)
	assert.Equal(t, "page=2 zoom=1.50", string(bitmap))

	got, err := svc.Get(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentPage)
	assert.Equal(t, 1.5, got.Zoom)
}

func TestRenderPageOutOfRange(t *testing.T) {
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 3}}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	_, err = svc.RenderPage(context.Background(), snap.SessionID, 4, 1.0)
	assert.ErrorIs(t, err, document.ErrPageOutOfRange)
	_, err = svc.RenderPage(context.Background(), snap.SessionID, 0, 1.0)
	assert.ErrorIs(t, err, document.ErrPageOutOfRange)
}

func TestRenderZoomClamped(t *testing.T) {
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	bitmap, err := svc.RenderPage(context.Background(), snap.SessionID, 1, 9.0)
	require.NoError(t, err)
	assert.Equal(t, "page=1 zoom=3.00", string(bitmap))

	bitmap, err = svc.RenderPage(context.Background(), snap.SessionID, 1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "page=1 zoom=0.50", string(bitmap))
}

func TestRenderSupersededIsDiscarded(t *testing.T) {
	doc := &fakeDoc{pages: 3, blockFirst: true, started: make(chan struct{})}
	svc := newTestService(&fakeEngine{doc: doc}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	id := snap.SessionID

	type result struct {
		bitmap []byte
		err    error
	}
	first := make(chan result, 1)
	go func() {
		b, err := svc.RenderPage(context.Background(), id, 1, 1.0)
		first <- result{b, err}
	}()

	<-doc.started

	// Second request issued while the first render is still running: it
	// wins, the first is cancelled and its late result discarded.
	bitmap, err := svc.RenderPage(context.Background(), id, 2, 2.0)
	require.NoError(t, err)
	assert.Equal(t, "page=2 zoom=2.00", string(bitmap))

	res := <-first
	assert.ErrorIs(t, res.err, document.ErrRenderCancelled)
	assert.Nil(t, res.bitmap)

	// State reflects the winning request only.
	got, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentPage)
	assert.Equal(t, 2.0, got.Zoom)
}

func TestToggleLanguageCachesTranslation(t *testing.T) {
	az := &fakeAnalyzer{}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 3}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	id := snap.SessionID
	waitReady(t, svc, id)

	// first switch to target invokes the translator once
	snap, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	require.NoError(t, err)
	assert.Equal(t, analysis.LanguageTarget, snap.ActiveLanguage)
	assert.True(t, snap.HasTranslation)
	require.NotNil(t, snap.Record)
	assert.Equal(t, "pengambilan lambat pada dokumen panjang", snap.Record.ProblemSolved)
	assert.EqualValues(t, 1, atomic.LoadInt32(&az.translateCalls))

	// back to source: local
	snap, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageSource)
	require.NoError(t, err)
	assert.Equal(t, analysis.LanguageSource, snap.ActiveLanguage)
	assert.Equal(t, "slow retrieval over long documents", snap.Record.ProblemSolved)

	// to target again: cache hit, zero remote calls
	snap, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	require.NoError(t, err)
	assert.Equal(t, analysis.LanguageTarget, snap.ActiveLanguage)
	assert.EqualValues(t, 1, atomic.LoadInt32(&az.translateCalls))

	// no-op when already active
	snap, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&az.translateCalls))
}

func TestToggleLanguageFailureKeepsSource(t *testing.T) {
	az := &fakeAnalyzer{translateErr: fmt.Errorf("%w: quota", analysis.ErrUpstream)}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	id := snap.SessionID
	waitReady(t, svc, id)

	_, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	assert.ErrorIs(t, err, analysis.ErrUpstream)

	// primary record and active language untouched, translating cleared
	snap, err = svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, analysis.LanguageSource, snap.ActiveLanguage)
	assert.False(t, snap.Translating)
	assert.False(t, snap.HasTranslation)
	require.NotNil(t, snap.Record)
	assert.Equal(t, "slow retrieval over long documents", snap.Record.ProblemSolved)

	// the user may retry: translation failure is terminal per attempt only
	az.translateErr = nil
	snap, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	require.NoError(t, err)
	assert.Equal(t, analysis.LanguageTarget, snap.ActiveLanguage)
	assert.EqualValues(t, 2, atomic.LoadInt32(&az.translateCalls))
}

func TestToggleLanguageSingleFlight(t *testing.T) {
	az := &fakeAnalyzer{translateGate: make(chan struct{})}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	id := snap.SessionID
	waitReady(t, svc, id)

	done := make(chan error, 1)
	go func() {
		_, err := svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
		done <- err
	}()

	require.Eventually(t, func() bool {
		s, err := svc.Get(id)
		return err == nil && s.Translating
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.ToggleLanguage(context.Background(), id, analysis.LanguageTarget)
	assert.ErrorIs(t, err, papers.ErrTranslationInFlight)

	close(az.translateGate)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, atomic.LoadInt32(&az.translateCalls))
}

func TestToggleLanguageNotReady(t *testing.T) {
	az := &fakeAnalyzer{analyzeErr: errors.New("boom")}
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, az)

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	waitReady(t, svc, snap.SessionID)

	_, err = svc.ToggleLanguage(context.Background(), snap.SessionID, analysis.LanguageTarget)
	assert.ErrorIs(t, err, papers.ErrNotReady)
}

func TestResetReleasesResourcesOnce(t *testing.T) {
	doc := &fakeDoc{pages: 2}
	svc := newTestService(&fakeEngine{doc: doc}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	id := snap.SessionID
	waitReady(t, svc, id)

	require.NoError(t, svc.Reset(id))
	assert.EqualValues(t, 1, atomic.LoadInt32(&doc.closes))

	_, err = svc.Get(id)
	assert.ErrorIs(t, err, papers.ErrSessionNotFound)

	// a second reset is not a double release
	err = svc.Reset(id)
	assert.ErrorIs(t, err, papers.ErrSessionNotFound)
	assert.EqualValues(t, 1, atomic.LoadInt32(&doc.closes))
}

func TestUnknownSession(t *testing.T) {
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, &fakeAnalyzer{})

	_, err := svc.Get("nope")
	assert.ErrorIs(t, err, papers.ErrSessionNotFound)
	_, err = svc.RenderPage(context.Background(), "nope", 1, 1.0)
	assert.ErrorIs(t, err, papers.ErrSessionNotFound)
	_, err = svc.ToggleLanguage(context.Background(), "nope", analysis.LanguageSource)
	assert.ErrorIs(t, err, papers.ErrSessionNotFound)
}

func TestToggleLanguageRejectsUnknownValue(t *testing.T) {
	svc := newTestService(&fakeEngine{doc: &fakeDoc{pages: 1}}, &fakeAnalyzer{})

	snap, err := svc.Open(context.Background(), "paper.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	waitReady(t, svc, snap.SessionID)

	_, err = svc.ToggleLanguage(context.Background(), snap.SessionID, analysis.Language("klingon"))
	assert.ErrorIs(t, err, papers.ErrUnsupportedLanguage)
}
