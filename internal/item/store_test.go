package item

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

const (
	testUserID = "user-1"
	testItemID = "3f2a8c1e-9b7d-4e6f-a5c4-b3d2e1f0a9b8"
)

type fixture struct {
	log         *callLog
	items       *mockItemRepo
	collections *mockCollectionRepo
	ledger      *mockLedger
	audio       *mockAudioStore
	store       *Store
}

func newFixture(items ...*model.Item) *fixture {
	log := &callLog{}
	f := &fixture{
		log:         log,
		items:       newMockItemRepo(log, items...),
		collections: &mockCollectionRepo{log: log},
		ledger:      &mockLedger{log: log},
		audio:       &mockAudioStore{log: log, objects: map[string][]byte{}},
	}
	f.store = NewStore(&mockTxRunner{log: log}, f.items, f.collections, f.ledger, f.audio)
	f.store.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func audioItem() *model.Item {
	return &model.Item{
		ID:      testItemID,
		UserID:  testUserID,
		Kind:    model.ItemKindTranscript,
		Content: &model.TranscriptContent{Transcription: "hello world"},
		Audio:   &model.AudioRef{Key: "users/user-1/speech_to_text/a.wav", SizeBytes: 32000, ContentType: "audio/wav"},
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		content model.Content
		want    string
	}{
		{"translation", &model.TranslationContent{Text: "Hello", Translation: "こんにちは"}, "Hello こんにちは"},
		{"transcript", &model.TranscriptContent{Transcription: " the quick fox "}, "the quick fox"},
		{"pronunciation", &model.PronunciationContent{ReferenceText: "fox"}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.content))
		})
	}
}

func TestCreate_SetsSearchTextAndInitialSRS(t *testing.T) {
	f := newFixture()

	got, err := f.store.Create(context.Background(), testUserID,
		&model.TranslationContent{Text: "apple", Translation: "りんご"},
		model.Languages{Source: "en", Target: "ja"}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.ItemKindTranslation, got.Kind)
	assert.Equal(t, "apple りんご", got.SearchText)
	assert.Equal(t, model.DefaultEaseFactor, got.SRS.EaseFactor)
	assert.Nil(t, got.SRS.NextReviewDate)
	assert.False(t, got.HasAudio())
	require.Len(t, f.items.created, 1)
}

func TestCreate_InvalidContent(t *testing.T) {
	f := newFixture()

	_, err := f.store.Create(context.Background(), testUserID,
		&model.TranslationContent{Text: "apple"}, model.Languages{}, nil)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidContent))
	assert.Empty(t, f.items.created)

	_, err = f.store.Create(context.Background(), testUserID,
		&model.PronunciationContent{ReferenceText: "fox", Accuracy: 120, Words: []model.WordAssessment{{Word: "fox", ErrorType: model.WordErrorNone}}},
		model.Languages{}, nil)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidContent))
}

func TestSearch_PassesFilter(t *testing.T) {
	f := newFixture()
	kind := model.ItemKindTranscript
	var got repository.ItemSearchFilter
	f.items.searchFn = func(_ context.Context, _ string, filter repository.ItemSearchFilter) ([]*model.Item, error) {
		got = filter
		return nil, nil
	}

	items, err := f.store.Search(context.Background(), testUserID, &kind, "Fox")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Equal(t, &kind, got.Kind)
	assert.Equal(t, "Fox", got.Query)
	assert.Equal(t, maxSearchResults, got.Limit)
}

func TestSearch_UnknownKind(t *testing.T) {
	f := newFixture()
	kind := model.ItemKind("flashcard")

	_, err := f.store.Search(context.Background(), testUserID, &kind, "")
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidInput))
}

func TestGet_NotOwned(t *testing.T) {
	it := audioItem()
	it.UserID = "someone-else"
	f := newFixture(it)

	_, err := f.store.Get(context.Background(), testUserID, testItemID)
	assert.True(t, model.IsCode(err, model.ErrCodeItemNotFound))

	_, err = f.store.Get(context.Background(), testUserID, "bogus")
	assert.True(t, model.IsCode(err, model.ErrCodeItemNotFound))
}

func TestDelete_CreditsBeforeDeleteAndCompactsCollections(t *testing.T) {
	f := newFixture(audioItem())
	f.collections.containing = []string{"c-1", "c-2"}

	require.NoError(t, f.store.Delete(context.Background(), testUserID, testItemID))

	assert.Equal(t, []string{
		"tx.begin",
		"items.lock",
		"ledger.credit",
		"collections.lock",
		"items.delete",
		"collections.compact:c-1",
		"collections.recount:c-1",
		"collections.compact:c-2",
		"collections.recount:c-2",
		"tx.commit",
		"blob.delete",
	}, f.log.calls)
	assert.Equal(t, []int64{32000}, f.ledger.credited)
	assert.Equal(t, []string{"users/user-1/speech_to_text/a.wav"}, f.audio.deleted)
}

func TestDelete_WithoutAudio_NoCreditNoBlob(t *testing.T) {
	it := audioItem()
	it.Audio = nil
	f := newFixture(it)

	require.NoError(t, f.store.Delete(context.Background(), testUserID, testItemID))
	assert.Empty(t, f.ledger.credited)
	assert.Empty(t, f.audio.deleted)
}

func TestDelete_NotOwned_NoSideEffects(t *testing.T) {
	it := audioItem()
	it.UserID = "someone-else"
	f := newFixture(it)

	err := f.store.Delete(context.Background(), testUserID, testItemID)
	assert.True(t, model.IsCode(err, model.ErrCodeItemNotFound))
	assert.Empty(t, f.ledger.credited)
	assert.NotContains(t, f.log.calls, "items.delete")
}

func TestDelete_CreditFails_RollsBack(t *testing.T) {
	f := newFixture(audioItem())
	f.ledger.err = errors.New("ledger missing")

	err := f.store.Delete(context.Background(), testUserID, testItemID)
	assert.ErrorIs(t, err, f.ledger.err)
	assert.Contains(t, f.log.calls, "tx.rollback")
	assert.NotContains(t, f.log.calls, "items.delete")
	assert.Empty(t, f.audio.deleted)
}

func TestDelete_BlobDeleteFailure_IsNotAnError(t *testing.T) {
	f := newFixture(audioItem())
	f.audio.deleteErr = errors.New("s3 unavailable")

	assert.NoError(t, f.store.Delete(context.Background(), testUserID, testItemID))
}

func TestOpenAudio(t *testing.T) {
	f := newFixture(audioItem())
	f.audio.objects["users/user-1/speech_to_text/a.wav"] = []byte("RIFF")

	rc, ct, err := f.store.OpenAudio(context.Background(), testUserID, testItemID)
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "RIFF", string(b))
	assert.Equal(t, "audio/wav", ct)
}

func TestOpenAudio_NoAudio(t *testing.T) {
	it := audioItem()
	it.Audio = nil
	f := newFixture(it)

	_, _, err := f.store.OpenAudio(context.Background(), testUserID, testItemID)
	assert.True(t, model.IsCode(err, model.ErrCodeAudioNotFound))
}

func TestOpenAudio_MissingObject(t *testing.T) {
	f := newFixture(audioItem())

	_, _, err := f.store.OpenAudio(context.Background(), testUserID, testItemID)
	assert.True(t, model.IsCode(err, model.ErrCodeAudioNotFound))
}
