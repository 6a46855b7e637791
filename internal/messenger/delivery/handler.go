package delivery

import (
	"errors"
	"net/http"

	"cochat-backend/internal/mailsync"
	messengerdto "cochat-backend/internal/messenger/dto"
	"cochat-backend/internal/messenger/usecase"

	"github.com/gin-gonic/gin"
)

type MessengerHandler struct {
	messengerUsecase usecase.MessengerUsecase
}

func NewMessengerHandler(messengerUsecase usecase.MessengerUsecase) *MessengerHandler {
	return &MessengerHandler{messengerUsecase: messengerUsecase}
}

func (h *MessengerHandler) GmailLogin(c *gin.Context) {
	url, err := h.messengerUsecase.GmailAuthURL(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messengerdto.AuthURLResponse{URL: url})
}

func (h *MessengerHandler) GmailCallback(c *gin.Context) {
	account, err := h.messengerUsecase.LinkGmail(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *MessengerHandler) InstagramLogin(c *gin.Context) {
	url, err := h.messengerUsecase.InstagramAuthURL(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messengerdto.AuthURLResponse{URL: url})
}

func (h *MessengerHandler) InstagramCallback(c *gin.Context) {
	account, err := h.messengerUsecase.LinkInstagram(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *MessengerHandler) LinkIMAP(c *gin.Context) {
	var req messengerdto.LinkIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account, err := h.messengerUsecase.LinkIMAP(c.Request.Context(), c.GetString("userID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *MessengerHandler) List(c *gin.Context) {
	accounts, err := h.messengerUsecase.List(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *MessengerHandler) Unlink(c *gin.Context) {
	if err := h.messengerUsecase.Unlink(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account unlinked"})
}

func (h *MessengerHandler) Resync(c *gin.Context) {
	result, err := h.messengerUsecase.Resync(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil && result == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidState), errors.Is(err, usecase.ErrNoRefreshToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrMailboxAuthFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrResyncUnsupported):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrProviderDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, mailsync.ErrUnknownProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
