package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"booklisting/internal/identity"
	"booklisting/internal/listing"
	"booklisting/internal/metrics"
	"booklisting/internal/models"
	"booklisting/internal/objectstore"
	"booklisting/internal/questions"
	"booklisting/internal/session"
	"booklisting/internal/staging"
	"booklisting/internal/storage"
)

// A 1x1 PNG so content sniffing reports image/png.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

var wizardAnswers = []string{"Dune", "Frank Herbert", "499", "250", "best", "Main library", "555-0101", "shipment"}

type testServer struct {
	router   *gin.Engine
	db       *sql.DB
	docs     *storage.DocumentStore
	previews *staging.DiskPreviews
	objects  *flakyObjects
}

// flakyObjects wraps a real store and fails uploads while failNext > 0.
type flakyObjects struct {
	inner objectstore.Store

	mu       sync.Mutex
	failNext int
}

func (f *flakyObjects) Upload(ctx context.Context, blob staging.Blob) (*models.StoredObject, error) {
	f.mu.Lock()
	fail := f.failNext > 0
	if fail {
		f.failNext--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("object store unavailable")
	}
	return f.inner.Upload(ctx, blob)
}

type client struct {
	t       *testing.T
	srv     *testServer
	headers map[string]string
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	objectsDir := t.TempDir()
	files, err := objectstore.NewFileStore(objectsDir, "/objects")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	previews, err := staging.NewDiskPreviews(t.TempDir(), "/api/previews")
	if err != nil {
		t.Fatalf("previews: %v", err)
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	objects := &flakyObjects{inner: files}
	docs := storage.NewDocumentStore(db)
	pipeline := listing.NewPipeline(objects, docs, listing.Config{}, collectors)
	sessions := session.NewManager(questions.Default(), previews, pipeline, session.Options{Metrics: collectors})

	handler := NewHandler(sessions, identity.NewGuard(), Options{
		Previews:   previews,
		ObjectsDir: objectsDir,
		Gatherer:   reg,
	})
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db, docs: docs, previews: previews, objects: objects}
}

func (s *testServer) client(t *testing.T, submitter string) *client {
	return &client{t: t, srv: s, headers: map[string]string{
		"X-Submitter-Id":   submitter,
		"X-Submitter-Name": "Reader " + submitter,
	}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.srv.router.ServeHTTP(rec, req)
	return rec
}

func (c *client) json(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) upload(path string, names ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, n := range names {
		part, err := w.CreateFormFile(formFilesField, n)
		if err != nil {
			c.t.Fatalf("create form file: %v", err)
		}
		part.Write(pngBytes)
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

// start creates a wizard and keeps its cookies and csrf header.
func (c *client) start() string {
	c.t.Helper()
	rec := c.json(http.MethodPost, "/api/wizard", nil)
	assertStatus(c.t, rec, http.StatusCreated)
	var body struct {
		Wizard    session.View `json:"wizard"`
		CSRFToken string       `json:"csrf_token"`
	}
	decodeJSON(c.t, rec.Body.Bytes(), &body)
	c.cookies = rec.Result().Cookies()
	c.headers["X-CSRF-Token"] = body.CSRFToken
	return body.Wizard.SessionID
}

func (c *client) answerAll(id string) {
	c.t.Helper()
	for _, a := range wizardAnswers {
		rec := c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), answerRequest{Value: a})
		assertStatus(c.t, rec, http.StatusOK)
	}
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

type answerResponse struct {
	Wizard  session.View `json:"wizard"`
	Outcome *struct {
		Status    string   `json:"status"`
		RecordID  string   `json:"recordId"`
		Images    []string `json:"images"`
		Retryable bool     `json:"retryable"`
	} `json:"outcome"`
}

func TestWizardEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t, "u1")
	id := c.start()
	c.answerAll(id)

	rec := c.upload(fmt.Sprintf("/api/wizard/%s/images", id), "front.png", "back.png")
	assertStatus(t, rec, http.StatusCreated)
	rec = c.upload(fmt.Sprintf("/api/wizard/%s/images", id), "spine.png")
	assertStatus(t, rec, http.StatusCreated)
	var staged struct {
		Wizard session.View `json:"wizard"`
	}
	decodeJSON(t, rec.Body.Bytes(), &staged)
	if len(staged.Wizard.Staged) != 3 {
		t.Fatalf("expected 3 staged images, got %d", len(staged.Wizard.Staged))
	}

	preview := c.json(http.MethodGet, staged.Wizard.Staged[0].URL, nil)
	assertStatus(t, preview, http.StatusOK)
	if preview.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("preview content type %q", preview.Header().Get("Content-Type"))
	}

	rec = c.json(http.MethodDelete, fmt.Sprintf("/api/wizard/%s/images/1", id), nil)
	assertStatus(t, rec, http.StatusOK)
	released := c.json(http.MethodGet, staged.Wizard.Staged[1].URL, nil)
	assertStatus(t, released, http.StatusNotFound)

	rec = c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), nil)
	assertStatus(t, rec, http.StatusCreated)
	var out answerResponse
	decodeJSON(t, rec.Body.Bytes(), &out)
	if out.Outcome == nil || out.Outcome.Status != "success" || len(out.Outcome.Images) != 2 {
		t.Fatalf("unexpected outcome %+v", out.Outcome)
	}
	if out.Wizard.Step != 0 || len(out.Wizard.Answers) != 0 || len(out.Wizard.Staged) != 0 {
		t.Fatalf("wizard not reset: %+v", out.Wizard)
	}
	if srv.previews.Live() != 0 {
		t.Fatalf("previews leaked: %d", srv.previews.Live())
	}

	var saved models.Listing
	if err := srv.docs.GetRecord(context.Background(), models.ListingsCollection, out.Outcome.RecordID, &saved); err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if saved.SubmitterID != "u1" || saved.SubmitterDisplayName != "Reader u1" || saved.Fields["delivery"] != "shipment" {
		t.Fatalf("unexpected listing %+v", saved)
	}
	if saved.Images[0] != out.Outcome.Images[0] || saved.Images[1] != out.Outcome.Images[1] {
		t.Fatalf("listing images out of order")
	}
	obj := c.json(http.MethodGet, saved.Images[0], nil)
	assertStatus(t, obj, http.StatusOK)
}

func TestFailedUploadKeepsWizardForRetry(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t, "u2")
	id := c.start()
	c.answerAll(id)
	assertStatus(t, c.upload(fmt.Sprintf("/api/wizard/%s/images", id), "a.png", "b.png", "c.png"), http.StatusCreated)

	srv.objects.mu.Lock()
	srv.objects.failNext = 1
	srv.objects.mu.Unlock()
	rec := c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), nil)
	assertStatus(t, rec, http.StatusBadGateway)
	var out answerResponse
	decodeJSON(t, rec.Body.Bytes(), &out)
	if out.Outcome == nil || out.Outcome.Status != "failure" || !out.Outcome.Retryable {
		t.Fatalf("unexpected outcome %+v", out.Outcome)
	}
	if out.Wizard.Step != out.Wizard.Total-1 || len(out.Wizard.Staged) != 3 {
		t.Fatalf("wizard state lost: %+v", out.Wizard)
	}
	var count int
	if err := srv.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil || count != 0 {
		t.Fatalf("records written on failure: %d %v", count, err)
	}

	rec = c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), nil)
	assertStatus(t, rec, http.StatusCreated)
}

func TestValidationAndNavigationErrors(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t, "u3")
	id := c.start()

	rec := c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/back", id), nil)
	assertStatus(t, rec, http.StatusConflict)

	rec = c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), answerRequest{Value: "  "})
	assertStatus(t, rec, http.StatusUnprocessableEntity)
	var verr struct {
		Field string `json:"field"`
	}
	decodeJSON(t, rec.Body.Bytes(), &verr)
	if verr.Field != "title" {
		t.Fatalf("expected title field, got %q", verr.Field)
	}

	rec = c.upload(fmt.Sprintf("/api/wizard/%s/images", id), "early.png")
	assertStatus(t, rec, http.StatusConflict)

	assertStatus(t, c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), answerRequest{Value: "Dune"}), http.StatusOK)
	rec = c.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/back", id), nil)
	assertStatus(t, rec, http.StatusOK)
	var view struct {
		Wizard session.View `json:"wizard"`
	}
	decodeJSON(t, rec.Body.Bytes(), &view)
	if view.Wizard.Step != 0 || view.Wizard.Prefill != "Dune" {
		t.Fatalf("back did not restore prior answer: %+v", view.Wizard)
	}
}

func TestWizardRequiresIdentityAndCSRF(t *testing.T) {
	srv := newTestServer(t)
	anon := &client{t: t, srv: srv, headers: map[string]string{}}
	assertStatus(t, anon.json(http.MethodPost, "/api/wizard", nil), http.StatusUnauthorized)

	owner := srv.client(t, "u4")
	id := owner.start()

	noCSRF := srv.client(t, "u4")
	noCSRF.cookies = owner.cookies
	assertStatus(t, noCSRF.json(http.MethodPost, fmt.Sprintf("/api/wizard/%s/answer", id), answerRequest{Value: "x"}), http.StatusForbidden)

	other := srv.client(t, "u5")
	other.cookies = owner.cookies
	other.headers["X-CSRF-Token"] = owner.headers["X-CSRF-Token"]
	assertStatus(t, other.json(http.MethodGet, fmt.Sprintf("/api/wizard/%s", id), nil), http.StatusNotFound)

	assertStatus(t, owner.json(http.MethodDelete, fmt.Sprintf("/api/wizard/%s", id), nil), http.StatusNoContent)
	assertStatus(t, owner.json(http.MethodGet, fmt.Sprintf("/api/wizard/%s", id), nil), http.StatusNotFound)
}

func TestQuestionsAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t, "u6")
	rec := c.json(http.MethodGet, "/api/questions", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Questions []questions.Descriptor `json:"questions"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if len(body.Questions) != 9 || body.Questions[8].Kind != questions.KindFileMulti {
		t.Fatalf("unexpected questions %+v", body.Questions)
	}

	c.start()
	rec = c.json(http.MethodGet, "/metrics", nil)
	assertStatus(t, rec, http.StatusOK)
	if !bytes.Contains(rec.Body.Bytes(), []byte("booklisting_wizard_sessions_active 1")) {
		t.Fatalf("session gauge missing from metrics output")
	}
}

func TestAnswerAcceptsJSONNumbers(t *testing.T) {
	srv := newTestServer(t)
	c := srv.client(t, "u7")
	id := c.start()
	path := fmt.Sprintf("/api/wizard/%s/answer", id)

	assertStatus(t, c.json(http.MethodPost, path, answerRequest{Value: "Dune"}), http.StatusOK)
	assertStatus(t, c.json(http.MethodPost, path, answerRequest{Value: "Frank Herbert"}), http.StatusOK)
	rec := c.json(http.MethodPost, path, map[string]any{"value": 499})
	assertStatus(t, rec, http.StatusOK)
	var view struct {
		Wizard session.View `json:"wizard"`
	}
	decodeJSON(t, rec.Body.Bytes(), &view)
	if view.Wizard.Step != 3 {
		t.Fatalf("numeric answer did not advance: %+v", view.Wizard)
	}

	assertStatus(t, c.json(http.MethodPost, path, map[string]any{"value": true}), http.StatusBadRequest)
}
