package dto

type AuthURLResponse struct {
	URL string `json:"url"`
}

type LinkIMAPRequest struct {
	Host     string `json:"host" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
