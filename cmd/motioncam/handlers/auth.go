package handlers

import (
	"crypto/subtle"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/wachiwi/motioncam/cmd/motioncam/middleware"
)

type AuthHandler struct {
	User       string
	Password   string
	TemplateFS fs.FS
}

func (h *AuthHandler) render(c *gin.Context, status int, data any) {
	tmpl, err := template.ParseFS(h.TemplateFS, "templates/login.html")
	if err != nil {
		slog.Error("Template parse error", "error", err)
		c.String(http.StatusInternalServerError, "Failed to render page")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	tmpl.Execute(c.Writer, data)
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, nil)
}

func (h *AuthHandler) Login(c *gin.Context) {
	session := sessions.Default(c)
	formUser := c.PostForm("username")
	formPassword := c.PostForm("password")

	userOK := subtle.ConstantTimeCompare([]byte(formUser), []byte(h.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(formPassword), []byte(h.Password)) == 1
	if !userOK || !passOK {
		slog.Warn("Failed login", "user", formUser, "remote", c.ClientIP())
		h.render(c, http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	session.Set(middleware.SessionUserKey, h.User)
	if err := session.Save(); err != nil {
		slog.Error("Failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.Redirect(http.StatusFound, "/login")
}
