package dto

import msgdomain "cochat-backend/internal/message/domain"

type ListQuery struct {
	Provider    string `form:"provider"`
	Category    string `form:"category"`
	Recommended *bool  `form:"recommended"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

type ListResponse struct {
	Messages []msgdomain.Message `json:"messages"`
	Total    int64               `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

type UpdateRequest struct {
	Category    *string `json:"category"`
	Recommended *bool   `json:"recommended"`
}

type SemanticSearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type SearchHit struct {
	Message msgdomain.Message `json:"message"`
	Score   float64           `json:"score"`
}

type SearchResponse struct {
	Query   string      `json:"query"`
	Method  string      `json:"method"`
	Results []SearchHit `json:"results"`
}
