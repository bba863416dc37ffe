package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const submitterContextKey = "identity_submitter"

// Submitter is the caller as asserted by the fronting gateway.
type Submitter struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Guard reads the gateway identity headers and issues the cookies that
// bind a browser to its wizard session.
type Guard struct {
	idHeader          string
	nameHeader        string
	sessionCookieName string
	csrfCookieName    string
	csrfHeaderName    string
}

func NewGuard() *Guard {
	return &Guard{
		idHeader:          "X-Submitter-Id",
		nameHeader:        "X-Submitter-Name",
		sessionCookieName: "wizard_session",
		csrfCookieName:    "csrf_token",
		csrfHeaderName:    "X-CSRF-Token",
	}
}

// Middleware rejects requests without a submitter id and stores the
// submitter in the context.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(g.idHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "submitter identity required"})
			return
		}
		name := strings.TrimSpace(c.GetHeader(g.nameHeader))
		if name == "" {
			name = id
		}
		c.Set(submitterContextKey, Submitter{ID: id, DisplayName: name})
		c.Next()
	}
}

// FromContext retrieves the submitter captured by the middleware.
func FromContext(c *gin.Context) (Submitter, bool) {
	val, ok := c.Get(submitterContextKey)
	if !ok {
		return Submitter{}, false
	}
	s, ok := val.(Submitter)
	return s, ok
}

// NewCSRFToken returns a random token used for CSRF protection.
func (g *Guard) NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (g *Guard) SessionCookieName() string {
	return g.sessionCookieName
}

func (g *Guard) CSRFCookieName() string {
	return g.csrfCookieName
}

func (g *Guard) CSRFHeaderName() string {
	return g.csrfHeaderName
}

// SetSessionCookies binds the wizard session and a fresh CSRF token to the browser.
func (g *Guard) SetSessionCookies(c *gin.Context, sessionID, csrfToken string, maxAge int) {
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.sessionCookieName,
		Value:    sessionID,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.csrfCookieName,
		Value:    csrfToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (g *Guard) ClearSessionCookies(c *gin.Context) {
	for _, name := range []string{g.sessionCookieName, g.csrfCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == g.sessionCookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
