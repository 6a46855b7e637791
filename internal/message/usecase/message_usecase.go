package usecase

import (
	"context"
	"log"
	"slices"
	"strings"

	msgdomain "cochat-backend/internal/message/domain"
	msgdto "cochat-backend/internal/message/dto"
	"cochat-backend/internal/message/repository"
	"cochat-backend/pkg/ai"
	"cochat-backend/pkg/fuzzy"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	// fuzzy search scans this many of the newest messages
	searchWindow = 1000
)

type messageUsecase struct {
	messageRepo repository.MessageRepository
	index       VectorIndex
}

func NewMessageUsecase(messageRepo repository.MessageRepository) MessageUsecase {
	return &messageUsecase{messageRepo: messageRepo}
}

func (u *messageUsecase) SetVectorIndex(index VectorIndex) {
	u.index = index
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

func (u *messageUsecase) List(userID string, query *msgdto.ListQuery) (*msgdto.ListResponse, error) {
	limit := clampLimit(query.Limit)
	offset := max(query.Offset, 0)
	messages, total, err := u.messageRepo.List(userID, repository.Filter{
		Provider:    query.Provider,
		Category:    query.Category,
		Recommended: query.Recommended,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []msgdomain.Message{}
	}
	return &msgdto.ListResponse{Messages: messages, Total: total, Limit: limit, Offset: offset}, nil
}

func (u *messageUsecase) Latest(userID string) (*msgdomain.Message, error) {
	m, err := u.messageRepo.Latest(userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func (u *messageUsecase) Get(userID, id string) (*msgdomain.Message, error) {
	m, err := u.messageRepo.FindByID(userID, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

// Update lets the user correct the classification of a message.
func (u *messageUsecase) Update(userID, id string, req *msgdto.UpdateRequest) (*msgdomain.Message, error) {
	fields := map[string]any{}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if !slices.Contains(ai.Categories, category) {
			return nil, ErrInvalidCategory
		}
		fields["category"] = category
	}
	if req.Recommended != nil {
		fields["recommended"] = *req.Recommended
	}
	if len(fields) == 0 {
		return u.Get(userID, id)
	}

	m, err := u.messageRepo.Update(userID, id, fields)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func (u *messageUsecase) Delete(ctx context.Context, userID, id string) error {
	deleted, err := u.messageRepo.Delete(userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrMessageNotFound
	}
	if u.index != nil {
		if err := u.index.DeleteMessage(ctx, id); err != nil {
			log.Printf("[Message] failed to remove %s from the vector index: %v", id, err)
		}
	}
	return nil
}

// Search ranks the user's newest messages by typo-tolerant keyword match.
func (u *messageUsecase) Search(userID, query string, limit int) (*msgdto.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit = clampLimit(limit)

	candidates, _, err := u.messageRepo.List(userID, repository.Filter{Limit: searchWindow})
	if err != nil {
		return nil, err
	}

	docs := make([]fuzzy.Document, len(candidates))
	byID := make(map[string]msgdomain.Message, len(candidates))
	for i, m := range candidates {
		docs[i] = fuzzy.Document{ID: m.ID, Subject: m.SubjectText(), Sender: m.SenderID, Content: m.Content}
		byID[m.ID] = m
	}

	resp := &msgdto.SearchResponse{Query: query, Method: "fuzzy", Results: []msgdto.SearchHit{}}
	for _, match := range fuzzy.Rank(query, docs) {
		if len(resp.Results) == limit {
			break
		}
		resp.Results = append(resp.Results, msgdto.SearchHit{Message: byID[match.ID], Score: match.Score})
	}
	return resp, nil
}

// SemanticSearch queries the vector index and falls back to keyword search
// when the index is unavailable.
func (u *messageUsecase) SemanticSearch(ctx context.Context, userID string, req *msgdto.SemanticSearchRequest) (*msgdto.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := clampLimit(req.Limit)

	if u.index == nil {
		return u.Search(userID, query, limit)
	}

	ids, distances, err := u.index.SemanticSearch(ctx, userID, query, limit)
	if err != nil {
		log.Printf("[Message] semantic search failed, falling back to keyword search: %v", err)
		return u.Search(userID, query, limit)
	}

	messages, err := u.messageRepo.FindByIDs(userID, ids)
	if err != nil {
		return nil, err
	}
	distance := make(map[string]float64, len(ids))
	for i, id := range ids {
		if i < len(distances) {
			distance[id] = distances[i]
		}
	}

	resp := &msgdto.SearchResponse{Query: query, Method: "semantic", Results: make([]msgdto.SearchHit, 0, len(messages))}
	for _, m := range messages {
		resp.Results = append(resp.Results, msgdto.SearchHit{Message: m, Score: 1 - distance[m.ID]})
	}
	return resp, nil
}
