package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	msgdomain "cochat-backend/internal/message/domain"
	msgdto "cochat-backend/internal/message/dto"
	"cochat-backend/internal/message/repository"
	"cochat-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T) (*gorm.DB, MessageUsecase) {
	t.Helper()
	db, err := database.NewInMemory(&msgdomain.Message{})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	messages := []msgdomain.Message{
		{ID: "m1", UserID: "u1", Provider: "gmail", ProviderMessageID: "g1", SenderID: "boss@corp.example", Subject: strPtr("Quarterly report deadline"), Content: "Send it by Friday", Category: "deadline", Recommended: true, ReceivedAt: base},
		{ID: "m2", UserID: "u1", Provider: "gmail", ProviderMessageID: "g2", SenderID: "shop@store.example", Subject: strPtr("Your invoice"), Content: "Payment due", Category: "payment", Recommended: true, ReceivedAt: base.Add(time.Hour)},
		{ID: "m3", UserID: "u1", Provider: "instagram", ProviderMessageID: "i1", SenderID: "555", Content: "is the report ready?", Category: "others", Recommended: false, ReceivedAt: base.Add(2 * time.Hour)},
		{ID: "m4", UserID: "u2", Provider: "gmail", ProviderMessageID: "g3", SenderID: "x@y", Subject: strPtr("report"), Category: "others", ReceivedAt: base},
	}
	require.NoError(t, db.Create(&messages).Error)
	return db, NewMessageUsecase(repository.NewMessageRepository(db))
}

func TestListFilters(t *testing.T) {
	_, uc := seed(t)

	all, err := uc.List("u1", &msgdto.ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	require.Len(t, all.Messages, 3)
	assert.Equal(t, "m3", all.Messages[0].ID, "newest first")

	gmail, err := uc.List("u1", &msgdto.ListQuery{Provider: "gmail", Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, gmail.Total)
	require.Len(t, gmail.Messages, 1)
	assert.Equal(t, "m2", gmail.Messages[0].ID)

	rec := false
	hidden, err := uc.List("u1", &msgdto.ListQuery{Recommended: &rec})
	require.NoError(t, err)
	require.Len(t, hidden.Messages, 1)
	assert.Equal(t, "m3", hidden.Messages[0].ID)

	none, err := uc.List("nobody", &msgdto.ListQuery{})
	require.NoError(t, err)
	assert.NotNil(t, none.Messages)
	assert.Empty(t, none.Messages)
}

func TestGetLatestUpdateDelete(t *testing.T) {
	_, uc := seed(t)

	latest, err := uc.Latest("u1")
	require.NoError(t, err)
	assert.Equal(t, "m3", latest.ID)

	_, err = uc.Get("u2", "m1")
	assert.ErrorIs(t, err, ErrMessageNotFound, "other users' messages are invisible")

	updated, err := uc.Update("u1", "m3", &msgdto.UpdateRequest{Category: strPtr("Office")})
	require.NoError(t, err)
	assert.Equal(t, "office", updated.Category)

	_, err = uc.Update("u1", "m3", &msgdto.UpdateRequest{Category: strPtr("spam")})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	idx := &fakeIndex{}
	uc.SetVectorIndex(idx)
	require.NoError(t, uc.Delete(context.Background(), "u1", "m3"))
	assert.Equal(t, []string{"m3"}, idx.deleted)
	assert.ErrorIs(t, uc.Delete(context.Background(), "u1", "m3"), ErrMessageNotFound)
}

func TestSearch(t *testing.T) {
	_, uc := seed(t)

	resp, err := uc.Search("u1", "report", 10)
	require.NoError(t, err)
	assert.Equal(t, "fuzzy", resp.Method)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "m1", resp.Results[0].Message.ID, "subject match ranks above body match")
	assert.Equal(t, "m3", resp.Results[1].Message.ID)

	_, err = uc.Search("u1", "  ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

type fakeIndex struct {
	ids       []string
	distances []float64
	err       error
	deleted   []string
}

func (f *fakeIndex) SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	return f.ids, f.distances, f.err
}

func (f *fakeIndex) DeleteMessage(ctx context.Context, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func TestSemanticSearch(t *testing.T) {
	_, uc := seed(t)

	uc.SetVectorIndex(&fakeIndex{ids: []string{"m2", "m4", "m1"}, distances: []float64{0.1, 0.2, 0.4}})
	resp, err := uc.SemanticSearch(context.Background(), "u1", &msgdto.SemanticSearchRequest{Query: "money owed"})
	require.NoError(t, err)
	assert.Equal(t, "semantic", resp.Method)
	require.Len(t, resp.Results, 2, "messages of other users are dropped")
	assert.Equal(t, "m2", resp.Results[0].Message.ID)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
	assert.Equal(t, "m1", resp.Results[1].Message.ID)

	uc.SetVectorIndex(&fakeIndex{err: errors.New("chroma down")})
	resp, err = uc.SemanticSearch(context.Background(), "u1", &msgdto.SemanticSearchRequest{Query: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, "fuzzy", resp.Method)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m2", resp.Results[0].Message.ID)
}
