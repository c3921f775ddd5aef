package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Auth         *Authenticator
	CookieSecure bool
}

func NewHandler(auth *Authenticator, cookieSecure bool) *Handler {
	return &Handler{Auth: auth, CookieSecure: cookieSecure}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.login)
	rg.POST("/logout", h.Auth.Middleware(), h.logout)
	rg.POST("/change-password", h.Auth.Middleware(), h.changePassword)
	rg.GET("/me", h.Auth.Middleware(), h.me)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "email and password required"})
		return
	}

	acc, err := h.Auth.VerifyPassword(c.Request.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, errBadCredentials) {
			c.JSON(http.StatusForbidden, gin.H{"detail": DetailInvalidPassword})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "login failed"})
		return
	}

	token, exp, err := h.Auth.Tokens.Sign(acc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Auth.CookieName, token, int(time.Until(exp).Seconds()), "/", "", h.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{
		"user":       acc,
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "old and new password required"})
		return
	}
	if len(req.NewPassword) < 8 || len(req.NewPassword) > 72 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "password must be 8-72 chars"})
		return
	}

	acc := CurrentAccount(c)
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.OldPassword)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"detail": DetailInvalidPassword})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "hash failed"})
		return
	}
	if err := h.Auth.Accounts.SetStaffCredentials(c.Request.Context(), acc.ID, string(hash)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "update password failed"})
		return
	}

	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}

// logout revokes every token issued to the account so far.
func (h *Handler) logout(c *gin.Context) {
	acc := CurrentAccount(c)
	if err := h.Auth.Accounts.BumpTokenVersion(c.Request.Context(), acc.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "logout failed"})
		return
	}

	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, CurrentAccount(c))
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetCookie(h.Auth.CookieName, "", -1, "/", "", h.CookieSecure, true)
}
