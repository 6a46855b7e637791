package repository

import (
	"errors"
	"time"

	msgdomain "cochat-backend/internal/message/domain"

	"gorm.io/gorm"
)

type Filter struct {
	Provider    string
	Category    string
	Recommended *bool
	Limit       int
	Offset      int
}

type MessageRepository interface {
	List(userID string, filter Filter) ([]msgdomain.Message, int64, error)
	Latest(userID string) (*msgdomain.Message, error)
	FindByID(userID, id string) (*msgdomain.Message, error)
	// FindByIDs returns the user's messages among ids, in the order of ids.
	FindByIDs(userID string, ids []string) ([]msgdomain.Message, error)
	Update(userID, id string, fields map[string]any) (*msgdomain.Message, error)
	Delete(userID, id string) (bool, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) List(userID string, filter Filter) ([]msgdomain.Message, int64, error) {
	q := r.db.Model(&msgdomain.Message{}).Where("user_id = ?", userID)
	if filter.Provider != "" {
		q = q.Where("provider = ?", filter.Provider)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Recommended != nil {
		q = q.Where("recommended = ?", *filter.Recommended)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []msgdomain.Message
	err := q.Order("received_at desc").Limit(filter.Limit).Offset(filter.Offset).Find(&messages).Error
	return messages, total, err
}

func (r *messageRepository) Latest(userID string) (*msgdomain.Message, error) {
	var message msgdomain.Message
	if err := r.db.Where("user_id = ?", userID).Order("received_at desc").First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByID(userID, id string) (*msgdomain.Message, error) {
	var message msgdomain.Message
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByIDs(userID string, ids []string) ([]msgdomain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []msgdomain.Message
	if err := r.db.Where("user_id = ? AND id IN ?", userID, ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]msgdomain.Message, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	ordered := make([]msgdomain.Message, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

func (r *messageRepository) Update(userID, id string, fields map[string]any) (*msgdomain.Message, error) {
	fields["updated_at"] = time.Now()
	res := r.db.Model(&msgdomain.Message{}).Where("id = ? AND user_id = ?", id, userID).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(userID, id)
}

func (r *messageRepository) Delete(userID, id string) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&msgdomain.Message{})
	return res.RowsAffected > 0, res.Error
}
