package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"booklisting/internal/listing"
	"booklisting/internal/metrics"
	"booklisting/internal/models"
	"booklisting/internal/questions"
	"booklisting/internal/ratelimit"
	"booklisting/internal/redis"
	"booklisting/internal/staging"
	"booklisting/internal/wizard"
)

var (
	ErrNotFound         = errors.New("wizard session not found")
	ErrSubmitInFlight   = errors.New("submission already in flight for this session")
	ErrRateLimited      = errors.New("too many submissions, try again later")
	ErrGuardUnavailable = errors.New("submission guard unavailable, try again later")
)

const DefaultIdleTimeout = 30 * time.Minute

type Pipeline interface {
	Submit(ctx context.Context, sub *wizard.Submission, who listing.Submitter) listing.Outcome
}

type Options struct {
	IdleTimeout time.Duration
	Limiter     *ratelimit.MapLimiter
	Metrics     *metrics.Collectors
	Cache       *redis.Client
	Notifier    listing.Notifier
}

// View is what a client needs to render the active step.
type View struct {
	SessionID string                  `json:"sessionId"`
	Phase     wizard.Phase            `json:"phase"`
	Step      int                     `json:"step"`
	Total     int                     `json:"total"`
	Progress  float64                 `json:"progress"`
	Question  questions.Descriptor    `json:"question"`
	Prefill   string                  `json:"prefill"`
	Staged    []staging.PreviewHandle `json:"staged"`
	Answers   wizard.AnswerSet        `json:"answers"`
}

type session struct {
	mu       sync.Mutex
	info     models.Session
	machine  *wizard.Machine
	lastSeen time.Time
	closed   bool
}

// Manager owns every live wizard session on this instance. Calls on one
// session are serialized by its mutex; the pipeline runs outside it while
// the machine's Submitting phase refuses other mutations.
type Manager struct {
	schema   *questions.Schema
	previews staging.Previews
	pipeline Pipeline
	reporter *listing.Reporter
	limiter  *ratelimit.MapLimiter
	metrics  *metrics.Collectors
	cache    *stateCache
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(schema *questions.Schema, previews staging.Previews, pipeline Pipeline, opts Options) *Manager {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Manager{
		schema:   schema,
		previews: previews,
		pipeline: pipeline,
		reporter: listing.NewReporter(opts.Notifier),
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		cache:    newStateCache(opts.Cache),
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (m *Manager) Schema() *questions.Schema {
	return m.schema
}

// Create mounts a new wizard at its first step for who.
func (m *Manager) Create(ctx context.Context, who listing.Submitter) (View, error) {
	if who.ID == "" {
		return View{}, listing.ErrMissingSubmitter
	}
	now := m.now().UTC()
	s := &session{
		info: models.Session{
			ID:                   uuid.NewString(),
			SubmitterID:          who.ID,
			SubmitterDisplayName: who.DisplayName,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
		machine:  wizard.New(m.schema, staging.NewBuffer(m.previews)),
		lastSeen: now,
	}
	s.machine.Mount()

	m.mu.Lock()
	m.sessions[s.info.ID] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()
	m.persist(ctx, s)
	debugLog("session %s created for %s", s.info.ID, who.ID)
	return m.view(s), nil
}

func (m *Manager) View(ctx context.Context, id string, who listing.Submitter) (View, error) {
	s, err := m.acquire(ctx, id, who)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()
	return m.view(s), nil
}

// Answer submits raw for the active step. Answering the last step runs the
// submission pipeline and returns its outcome alongside the new view.
func (m *Manager) Answer(ctx context.Context, id string, who listing.Submitter, raw string) (View, *listing.Outcome, error) {
	s, err := m.acquire(ctx, id, who)
	if err != nil {
		return View{}, nil, err
	}
	sub, err := s.machine.Answer(raw)
	if err != nil || sub == nil {
		if err == nil {
			m.touch(ctx, s)
		}
		v := m.view(s)
		s.mu.Unlock()
		return v, nil, err
	}

	if !m.limiter.Allow(who.ID, m.now()) {
		_ = s.machine.Fail()
		m.metrics.Submission("rejected")
		v := m.view(s)
		s.mu.Unlock()
		return v, nil, ErrRateLimited
	}
	ok, err := m.cache.acquireSubmit(ctx, id)
	if err != nil || !ok {
		_ = s.machine.Fail()
		v := m.view(s)
		s.mu.Unlock()
		if err != nil {
			log.Printf("session %s submit guard failed: %v", id, err)
			return v, nil, ErrGuardUnavailable
		}
		return v, nil, ErrSubmitInFlight
	}
	staged := s.machine.Buffer().Len()
	s.mu.Unlock()

	debugLog("session %s submitting %d images", id, len(sub.Images))
	outcome := m.pipeline.Submit(context.WithoutCancel(ctx), sub, who)

	s.mu.Lock()
	if err := m.reporter.Report(id, s.machine, outcome); err != nil {
		log.Printf("session %s: %v", id, err)
	}
	if outcome.OK() {
		m.metrics.StagedDelta(-staged)
	}
	m.touch(ctx, s)
	v := m.view(s)
	s.mu.Unlock()
	m.cache.releaseSubmit(context.WithoutCancel(ctx), id)
	return v, &outcome, nil
}

func (m *Manager) Back(ctx context.Context, id string, who listing.Submitter) (View, error) {
	return m.mutate(ctx, id, who, func(s *session) error {
		return s.machine.Back()
	})
}

func (m *Manager) Stage(ctx context.Context, id string, who listing.Submitter, blobs []staging.Blob) (View, error) {
	return m.mutate(ctx, id, who, func(s *session) error {
		if err := s.machine.Stage(blobs); err != nil {
			return err
		}
		m.metrics.StagedDelta(len(blobs))
		return nil
	})
}

func (m *Manager) Unstage(ctx context.Context, id string, who listing.Submitter, index int) (View, error) {
	return m.mutate(ctx, id, who, func(s *session) error {
		if err := s.machine.Unstage(index); err != nil {
			return err
		}
		m.metrics.StagedDelta(-1)
		return nil
	})
}

// Discard abandons a session, releasing its staged images. It is refused
// while a submission is in flight.
func (m *Manager) Discard(ctx context.Context, id string, who listing.Submitter) error {
	s, err := m.acquire(ctx, id, who)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := m.close(s); err != nil {
		return err
	}
	m.cache.invalidate(ctx, id)
	m.cache.publishInvalidation(ctx, invalidateMessage{SessionID: id})
	return nil
}

func (m *Manager) mutate(ctx context.Context, id string, who listing.Submitter, fn func(*session) error) (View, error) {
	s, err := m.acquire(ctx, id, who)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()
	if err := fn(s); err != nil {
		return m.view(s), err
	}
	m.touch(ctx, s)
	return m.view(s), nil
}

// acquire returns the session locked. Sessions unknown in memory are
// restored from the redis snapshot when one exists.
func (m *Manager) acquire(ctx context.Context, id string, who listing.Submitter) (*session, error) {
	for attempt := 0; attempt < 2; attempt++ {
		m.mu.Lock()
		s, ok := m.sessions[id]
		m.mu.Unlock()
		if !ok {
			s, ok = m.restore(ctx, id)
			if !ok {
				return nil, ErrNotFound
			}
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			continue
		}
		if s.info.SubmitterID != who.ID {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *Manager) restore(ctx context.Context, id string) (*session, bool) {
	rec, ok := m.cache.load(ctx, id)
	if !ok {
		return nil, false
	}
	s := &session{
		info:     rec.Session,
		machine:  wizard.New(m.schema, staging.NewBuffer(m.previews)),
		lastSeen: m.now().UTC(),
	}
	s.machine.Restore(rec.State)

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, true
	}
	m.sessions[id] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()
	debugLog("session %s restored at step %d", id, s.machine.Step())
	return s, true
}

// close clears the buffer and drops the session. Caller holds s.mu.
func (m *Manager) close(s *session) error {
	staged := s.machine.Buffer().Len()
	if err := s.machine.Reset(); err != nil {
		return err
	}
	s.closed = true
	m.mu.Lock()
	delete(m.sessions, s.info.ID)
	m.mu.Unlock()
	m.metrics.StagedDelta(-staged)
	m.metrics.SessionClosed()
	return nil
}

func (m *Manager) touch(ctx context.Context, s *session) {
	now := m.now().UTC()
	s.lastSeen = now
	s.info.UpdatedAt = now
	m.persist(ctx, s)
}

func (m *Manager) persist(ctx context.Context, s *session) {
	m.cache.save(ctx, snapshotRecord{Session: s.info, State: s.machine.Snapshot()})
}

func (m *Manager) view(s *session) View {
	mc := s.machine
	return View{
		SessionID: s.info.ID,
		Phase:     mc.Phase(),
		Step:      mc.Step(),
		Total:     mc.Total(),
		Progress:  mc.Progress(),
		Question:  mc.Current(),
		Prefill:   mc.Prefill(),
		Staged:    mc.Staged(),
		Answers:   mc.Answers(),
	}
}

// Len reports how many sessions are held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close releases every session's staged images, including ones mid-submit.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.mu.Lock()
		if s.machine.Phase() == wizard.PhaseSubmitting {
			_ = s.machine.Fail()
		}
		if err := m.close(s); err != nil {
			log.Printf("session %s close failed: %v", s.info.ID, err)
		}
		s.mu.Unlock()
	}
}
