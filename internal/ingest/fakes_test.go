package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/vocalearn/internal/audio"
	"github.com/hitoshi/vocalearn/internal/metrics"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/speech"
	"github.com/hitoshi/vocalearn/internal/translate"
)

// --- speech ---

type fakeSession struct {
	events chan speech.Event
	closed atomic.Bool
}

// newScriptedSession は指定イベントを送信済みのセッションを返す。チャネルは閉じない。
func newScriptedSession(evs ...speech.Event) *fakeSession {
	s := &fakeSession{events: make(chan speech.Event, len(evs)+1)}
	for _, ev := range evs {
		s.events <- ev
	}
	return s
}

func (s *fakeSession) Events() <-chan speech.Event { return s.events }

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeSpeech struct {
	session  *fakeSession
	err      error
	gotAudio []byte
	gotLang  string
	gotRef   string
}

func (f *fakeSpeech) StartRecognition(ctx context.Context, r io.Reader, lang string) (speech.Session, error) {
	f.gotAudio, _ = io.ReadAll(r)
	f.gotLang = lang
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSpeech) StartAssessment(ctx context.Context, r io.Reader, lang, ref string) (speech.Session, error) {
	f.gotRef = ref
	return f.StartRecognition(ctx, r, lang)
}

// --- audio ---

type fakeNormalizer struct {
	err   error
	wsDir string
}

func (n *fakeNormalizer) Normalize(ctx context.Context, ws *audio.Workspace, r io.Reader, name string) (*audio.Normalized, error) {
	n.wsDir = ws.Dir()
	if n.err != nil {
		return nil, n.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	path := ws.Path("normalized.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}
	return &audio.Normalized{Path: path, SizeBytes: int64(len(data)), DurationMs: 1000}, nil
}

// --- quota ---

type fakeLedger struct {
	mu        sync.Mutex
	ledger    model.QuotaLedger
	denyDebit bool
	debits    []int64
	credits   []int64
	calls     int
}

func newFakeLedger(quotaBytes int64, maxFiles int) *fakeLedger {
	return &fakeLedger{ledger: model.QuotaLedger{UserID: "u1", QuotaBytes: quotaBytes, MaxFiles: maxFiles}}
}

func (l *fakeLedger) snapshot() *model.QuotaLedger {
	c := l.ledger
	return &c
}

func (l *fakeLedger) CanAdmit(ctx context.Context, userID string, size int64) (bool, *model.QuotaLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.ledger.CanAdmit(size), l.snapshot(), nil
}

func (l *fakeLedger) Debit(ctx context.Context, userID string, size int64) (bool, *model.QuotaLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.denyDebit || !l.ledger.CanAdmit(size) {
		return false, l.snapshot(), nil
	}
	l.ledger.UsedBytes += size
	l.ledger.FileCount++
	l.debits = append(l.debits, size)
	return true, l.snapshot(), nil
}

func (l *fakeLedger) Credit(ctx context.Context, userID string, size int64) (*model.QuotaLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.ledger.UsedBytes = max(0, l.ledger.UsedBytes-size)
	l.ledger.FileCount = max(0, l.ledger.FileCount-1)
	l.credits = append(l.credits, size)
	return l.snapshot(), nil
}

// --- blob ---

type fakeBlobs struct {
	objects   map[string][]byte
	uploadErr error
	deleted   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (b *fakeBlobs) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

// --- item ---

type fakeItems struct {
	created []*model.Item
	err     error
}

func (f *fakeItems) Create(ctx context.Context, userID string, content model.Content, langs model.Languages, ref *model.AudioRef) (*model.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	item := &model.Item{
		ID:        fmt.Sprintf("item-%d", len(f.created)+1),
		UserID:    userID,
		Kind:      content.Kind(),
		Content:   content,
		Languages: langs,
		Audio:     ref,
	}
	f.created = append(f.created, item)
	return item, nil
}

// --- translate ---

type fakeTranslator struct {
	result  *translate.Result
	err     error
	gotFrom string
	gotTo   string
	gotText string
}

func (f *fakeTranslator) Translate(ctx context.Context, text, from, to string) (*translate.Result, error) {
	f.gotText, f.gotFrom, f.gotTo = text, from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// --- metrics ---

type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	outcomes []string
	failures []string
}

func (m *recordingMetrics) RecordIngestion(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, kind+":"+outcome)
}

func (m *recordingMetrics) RecordRecognitionFailure(kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, kind+":"+reason)
}
