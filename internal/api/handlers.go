package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"booklisting/internal/identity"
	"booklisting/internal/listing"
	"booklisting/internal/questions"
	"booklisting/internal/session"
	"booklisting/internal/staging"
	"booklisting/internal/wizard"
)

const (
	maxImageBytes  = 10 << 20 // 10 MB per image
	maxFormMemory  = 32 << 20
	defaultMaxAge  = 3600
	formFilesField = "files"
)

// PreviewSource resolves a live preview key to a file on disk.
type PreviewSource interface {
	Open(key string) (path string, contentType string, err error)
}

type Options struct {
	Previews PreviewSource
	// ObjectsDir is served at /objects when the file object store is used.
	ObjectsDir   string
	Gatherer     prometheus.Gatherer
	CookieMaxAge int
}

// Handler wires HTTP routes to the wizard session manager.
type Handler struct {
	sessions *session.Manager
	guard    *identity.Guard
	opts     Options
}

func NewHandler(sessions *session.Manager, guard *identity.Guard, opts Options) *Handler {
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = defaultMaxAge
	}
	return &Handler{sessions: sessions, guard: guard, opts: opts}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/questions", h.listQuestions)
	api.GET("/previews/:key", h.preview)

	wiz := api.Group("/wizard", h.guard.Middleware())
	wiz.POST("", h.createWizard)
	owned := wiz.Group("/:id", h.guard.CSRFMiddleware())
	owned.GET("", h.getWizard)
	owned.POST("/answer", h.answer)
	owned.POST("/back", h.back)
	owned.POST("/images", h.stageImages)
	owned.DELETE("/images/:index", h.unstageImage)
	owned.DELETE("", h.discard)

	if h.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if h.opts.ObjectsDir != "" {
		router.Static("/objects", h.opts.ObjectsDir)
	}
}

func (h *Handler) submitter(c *gin.Context) (listing.Submitter, bool) {
	who, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "submitter identity required"})
		return listing.Submitter{}, false
	}
	return listing.Submitter{ID: who.ID, DisplayName: who.DisplayName}, true
}

func (h *Handler) listQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": h.sessions.Schema().All()})
}

func (h *Handler) createWizard(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	csrfToken, err := h.guard.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue csrf token failed"})
		return
	}
	view, err := h.sessions.Create(c.Request.Context(), who)
	if err != nil {
		writeError(c, err)
		return
	}
	h.guard.SetSessionCookies(c, view.SessionID, csrfToken, h.opts.CookieMaxAge)
	c.JSON(http.StatusCreated, gin.H{"wizard": view, "csrf_token": csrfToken})
}

func (h *Handler) getWizard(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	view, err := h.sessions.View(c.Request.Context(), c.Param("id"), who)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wizard": view})
}

// answerRequest accepts a JSON string or number; numbers are answered in
// their shortest decimal form.
type answerRequest struct {
	Value any `json:"value"`
}

func (r answerRequest) raw() (string, bool) {
	switch v := r.Value.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func (h *Handler) answer(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	raw, ok := req.raw()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a string or number"})
		return
	}
	view, outcome, err := h.sessions.Answer(c.Request.Context(), c.Param("id"), who, raw)
	if err != nil {
		writeError(c, err)
		return
	}
	if outcome == nil {
		c.JSON(http.StatusOK, gin.H{"wizard": view})
		return
	}
	status := http.StatusCreated
	if !outcome.OK() {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"wizard": view, "outcome": outcome})
}

func (h *Handler) back(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	view, err := h.sessions.Back(c.Request.Context(), c.Param("id"), who)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wizard": view})
}

func (h *Handler) stageImages(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	var headers []*multipart.FileHeader
	if c.Request.MultipartForm != nil {
		headers = c.Request.MultipartForm.File[formFilesField]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files are required"})
		return
	}
	blobs := make([]staging.Blob, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "file": fh.Filename})
			return
		}
		blob, err := readBlob(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed", "file": fh.Filename})
			return
		}
		blobs = append(blobs, blob)
	}
	view, err := h.sessions.Stage(c.Request.Context(), c.Param("id"), who, blobs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wizard": view})
}

// readBlob loads an uploaded file and sniffs its content type from the
// first bytes rather than trusting the client header.
func readBlob(fh *multipart.FileHeader) (staging.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return staging.Blob{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return staging.Blob{}, err
	}
	if len(data) > maxImageBytes {
		return staging.Blob{}, errors.New("file too large")
	}
	return staging.Blob{
		Name:        filepath.Base(fh.Filename),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func (h *Handler) unstageImage(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image index"})
		return
	}
	view, err := h.sessions.Unstage(c.Request.Context(), c.Param("id"), who, index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wizard": view})
}

func (h *Handler) discard(c *gin.Context) {
	who, ok := h.submitter(c)
	if !ok {
		return
	}
	if err := h.sessions.Discard(c.Request.Context(), c.Param("id"), who); err != nil {
		writeError(c, err)
		return
	}
	h.guard.ClearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) preview(c *gin.Context) {
	if h.opts.Previews == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	path, contentType, err := h.opts.Previews.Open(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, no-store")
	c.File(path)
}

func writeError(c *gin.Context, err error) {
	var verr *questions.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, staging.ErrIndexOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrGuardUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, listing.ErrMissingSubmitter):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, wizard.ErrSubmitting),
		errors.Is(err, session.ErrSubmitInFlight),
		errors.Is(err, wizard.ErrNotFileStep),
		errors.Is(err, wizard.ErrAtFirstStep),
		errors.Is(err, wizard.ErrNotMounted),
		errors.Is(err, wizard.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
