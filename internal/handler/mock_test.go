package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vocalearn/internal/ingest"
	"github.com/hitoshi/vocalearn/internal/item"
	"github.com/hitoshi/vocalearn/internal/middleware"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
	"github.com/hitoshi/vocalearn/internal/srs"
)

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func testItem(id string) *model.Item {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &model.Item{
		ID:     id,
		UserID: "user-123",
		Kind:   model.ItemKindTranslation,
		Content: &model.TranslationContent{
			Text:        "hello",
			Translation: "こんにちは",
		},
		Languages: model.Languages{Source: "en", Target: "ja"},
		SRS:       model.NewSRSState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- ItemServiceInterface ---

type mockItemService struct {
	searchFn    func(ctx context.Context, userID string, kind *model.ItemKind, query string) ([]*model.Item, error)
	getFn       func(ctx context.Context, userID, itemID string) (*model.Item, error)
	deleteFn    func(ctx context.Context, userID, itemID string) error
	openAudioFn func(ctx context.Context, userID, itemID string) (io.ReadCloser, string, error)
	subtitlesFn func(ctx context.Context, userID, itemID string, format item.SubtitleFormat, w io.Writer) error
}

func (m *mockItemService) Search(ctx context.Context, userID string, kind *model.ItemKind, query string) ([]*model.Item, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, userID, kind, query)
	}
	return nil, nil
}

func (m *mockItemService) Get(ctx context.Context, userID, itemID string) (*model.Item, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, itemID)
	}
	return testItem(itemID), nil
}

func (m *mockItemService) Delete(ctx context.Context, userID, itemID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, itemID)
	}
	return nil
}

func (m *mockItemService) OpenAudio(ctx context.Context, userID, itemID string) (io.ReadCloser, string, error) {
	if m.openAudioFn != nil {
		return m.openAudioFn(ctx, userID, itemID)
	}
	return io.NopCloser(strings.NewReader("RIFF")), "audio/wav", nil
}

func (m *mockItemService) Subtitles(ctx context.Context, userID, itemID string, format item.SubtitleFormat, w io.Writer) error {
	if m.subtitlesFn != nil {
		return m.subtitlesFn(ctx, userID, itemID, format, w)
	}
	return nil
}

// --- QuotaReaderInterface ---

type mockQuotaReader struct {
	summaryFn func(ctx context.Context, userID string) (model.QuotaSummary, error)
}

func (m *mockQuotaReader) Summary(ctx context.Context, userID string) (model.QuotaSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, userID)
	}
	return model.QuotaSummary{QuotaMB: 100, RemainingMB: 100, MaxFiles: 50, CanUploadMore: true}, nil
}

// --- ReviewServiceInterface ---

type mockReviewService struct {
	recordReviewFn  func(ctx context.Context, userID, itemID string, in srs.ReviewInput) (*model.Review, *model.Item, error)
	historyFn       func(ctx context.Context, userID, itemID string) ([]*model.Review, error)
	scheduleFn      func(ctx context.Context, userID, itemID string, date time.Time) (*model.Item, error)
	dueItemsFn      func(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error)
	startSessionFn  func(ctx context.Context, userID string, kind model.StudySessionKind) (*model.StudySession, error)
	endSessionFn    func(ctx context.Context, userID, sessionID string) (*model.StudySession, error)
	getSessionFn    func(ctx context.Context, userID, sessionID string) (*model.StudySession, error)
	listSessionsFn  func(ctx context.Context, userID string, limit int) ([]*model.StudySession, error)
	deleteSessionFn func(ctx context.Context, userID, sessionID string) error
}

func (m *mockReviewService) RecordReview(ctx context.Context, userID, itemID string, in srs.ReviewInput) (*model.Review, *model.Item, error) {
	if m.recordReviewFn != nil {
		return m.recordReviewFn(ctx, userID, itemID, in)
	}
	return &model.Review{ID: "review-1", ItemID: itemID, Quality: in.Quality}, testItem(itemID), nil
}

func (m *mockReviewService) History(ctx context.Context, userID, itemID string) ([]*model.Review, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, itemID)
	}
	return nil, nil
}

func (m *mockReviewService) Schedule(ctx context.Context, userID, itemID string, date time.Time) (*model.Item, error) {
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, userID, itemID, date)
	}
	return testItem(itemID), nil
}

func (m *mockReviewService) DueItems(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error) {
	if m.dueItemsFn != nil {
		return m.dueItemsFn(ctx, userID, asOf)
	}
	return nil, nil
}

func (m *mockReviewService) StartSession(ctx context.Context, userID string, kind model.StudySessionKind) (*model.StudySession, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, userID, kind)
	}
	return &model.StudySession{ID: "session-1", UserID: userID, Kind: kind, StartedAt: time.Now()}, nil
}

func (m *mockReviewService) EndSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error) {
	if m.endSessionFn != nil {
		return m.endSessionFn(ctx, userID, sessionID)
	}
	now := time.Now()
	return &model.StudySession{ID: sessionID, UserID: userID, StartedAt: now.Add(-time.Minute), EndedAt: &now}, nil
}

func (m *mockReviewService) GetSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, userID, sessionID)
	}
	return &model.StudySession{ID: sessionID, UserID: userID, StartedAt: time.Now()}, nil
}

func (m *mockReviewService) ListSessions(ctx context.Context, userID string, limit int) ([]*model.StudySession, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockReviewService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if m.deleteSessionFn != nil {
		return m.deleteSessionFn(ctx, userID, sessionID)
	}
	return nil
}

// --- CollectionServiceInterface ---

type mockCollectionService struct {
	createFn     func(ctx context.Context, userID, name, description, icon string) (*model.Collection, error)
	listFn       func(ctx context.Context, userID string) ([]*model.Collection, error)
	getFn        func(ctx context.Context, userID, collectionID string) (*model.Collection, error)
	itemsFn      func(ctx context.Context, userID, collectionID string) ([]repository.CollectionEntry, error)
	renameFn     func(ctx context.Context, userID, collectionID, name string) (*model.Collection, error)
	describeFn   func(ctx context.Context, userID, collectionID, description, icon string) (*model.Collection, error)
	deleteFn     func(ctx context.Context, userID, collectionID string) error
	addItemFn    func(ctx context.Context, userID, collectionID, itemID string) (*model.CollectionItem, error)
	removeItemFn func(ctx context.Context, userID, collectionID, itemID string) error
}

func (m *mockCollectionService) Create(ctx context.Context, userID, name, description, icon string) (*model.Collection, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name, description, icon)
	}
	return &model.Collection{ID: "col-1", UserID: userID, Name: name, Description: description, Icon: icon}, nil
}

func (m *mockCollectionService) List(ctx context.Context, userID string) ([]*model.Collection, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCollectionService) Get(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, collectionID)
	}
	return &model.Collection{ID: collectionID, UserID: userID, Name: "words"}, nil
}

func (m *mockCollectionService) Items(ctx context.Context, userID, collectionID string) ([]repository.CollectionEntry, error) {
	if m.itemsFn != nil {
		return m.itemsFn(ctx, userID, collectionID)
	}
	return nil, nil
}

func (m *mockCollectionService) Rename(ctx context.Context, userID, collectionID, name string) (*model.Collection, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, userID, collectionID, name)
	}
	return &model.Collection{ID: collectionID, UserID: userID, Name: name}, nil
}

func (m *mockCollectionService) Describe(ctx context.Context, userID, collectionID, description, icon string) (*model.Collection, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, userID, collectionID, description, icon)
	}
	return &model.Collection{ID: collectionID, UserID: userID, Name: "words", Description: description, Icon: icon}, nil
}

func (m *mockCollectionService) Delete(ctx context.Context, userID, collectionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, collectionID)
	}
	return nil
}

func (m *mockCollectionService) AddItem(ctx context.Context, userID, collectionID, itemID string) (*model.CollectionItem, error) {
	if m.addItemFn != nil {
		return m.addItemFn(ctx, userID, collectionID, itemID)
	}
	return &model.CollectionItem{CollectionID: collectionID, ItemID: itemID, Position: 1}, nil
}

func (m *mockCollectionService) RemoveItem(ctx context.Context, userID, collectionID, itemID string) error {
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, userID, collectionID, itemID)
	}
	return nil
}

// --- IngestServiceInterface ---

type mockIngestService struct {
	transcribeFn func(ctx context.Context, req ingest.AudioRequest) (*ingest.TranscriptResult, error)
	assessFn     func(ctx context.Context, req ingest.AudioRequest) (*ingest.AssessmentResult, error)
	translateFn  func(ctx context.Context, userID, text, from, to string) (*ingest.TranslationResult, error)
}

func (m *mockIngestService) Transcribe(ctx context.Context, req ingest.AudioRequest) (*ingest.TranscriptResult, error) {
	if m.transcribeFn != nil {
		return m.transcribeFn(ctx, req)
	}
	return &ingest.TranscriptResult{Transcript: &model.TranscriptContent{Transcription: "hello"}}, nil
}

func (m *mockIngestService) Assess(ctx context.Context, req ingest.AudioRequest) (*ingest.AssessmentResult, error) {
	if m.assessFn != nil {
		return m.assessFn(ctx, req)
	}
	return &ingest.AssessmentResult{Assessment: &model.PronunciationContent{ReferenceText: req.ReferenceText}}, nil
}

func (m *mockIngestService) Translate(ctx context.Context, userID, text, from, to string) (*ingest.TranslationResult, error) {
	if m.translateFn != nil {
		return m.translateFn(ctx, userID, text, from, to)
	}
	return &ingest.TranslationResult{Translation: &model.TranslationContent{Text: text, Translation: "訳"}}, nil
}

// --- UserServiceInterface ---

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}
