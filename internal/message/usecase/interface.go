package usecase

import (
	"context"
	"errors"

	msgdomain "cochat-backend/internal/message/domain"
	msgdto "cochat-backend/internal/message/dto"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidCategory = errors.New("unknown category")
	ErrEmptyQuery      = errors.New("search query is empty")
)

type MessageUsecase interface {
	List(userID string, query *msgdto.ListQuery) (*msgdto.ListResponse, error)
	Latest(userID string) (*msgdomain.Message, error)
	Get(userID, id string) (*msgdomain.Message, error)
	Update(userID, id string, req *msgdto.UpdateRequest) (*msgdomain.Message, error)
	Delete(ctx context.Context, userID, id string) error

	Search(userID, query string, limit int) (*msgdto.SearchResponse, error)
	SemanticSearch(ctx context.Context, userID string, req *msgdto.SemanticSearchRequest) (*msgdto.SearchResponse, error)
	SetVectorIndex(index VectorIndex)
}

// VectorIndex is the semantic index of accepted messages; *chroma.ChromaClient
// implements it.
type VectorIndex interface {
	SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, []float64, error)
	DeleteMessage(ctx context.Context, messageID string) error
}
