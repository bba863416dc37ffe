package wizard

import (
	"errors"
	"fmt"

	"booklisting/internal/questions"
	"booklisting/internal/staging"
)

var (
	ErrNotMounted  = errors.New("wizard not mounted")
	ErrSubmitting  = errors.New("submission already in flight")
	ErrAtFirstStep = errors.New("already at first step")
	ErrNotFileStep = errors.New("current step does not accept images")
	ErrNotPending  = errors.New("no submission pending")
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseAnswering  Phase = "answering"
	PhaseSubmitting Phase = "submitting"
)

// AnswerSet maps question id to its recorded value. FileMulti questions
// have no entry; their answer is the staging buffer.
type AnswerSet map[string]any

func (a AnswerSet) clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Submission is handed to the pipeline when the last step is answered.
// Images is a snapshot of the staging order at that moment.
type Submission struct {
	Answers AnswerSet
	Images  []staging.Blob
}

// Machine drives one wizard session. It is not safe for concurrent use;
// the owning session serializes calls.
type Machine struct {
	schema  *questions.Schema
	buffer  *staging.Buffer
	phase   Phase
	step    int
	answers AnswerSet
}

func New(schema *questions.Schema, buffer *staging.Buffer) *Machine {
	return &Machine{
		schema:  schema,
		buffer:  buffer,
		phase:   PhaseIdle,
		answers: make(AnswerSet),
	}
}

// Mount moves Idle to Step(0).
func (m *Machine) Mount() {
	if m.phase == PhaseIdle {
		m.phase = PhaseAnswering
		m.step = 0
	}
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) Step() int {
	return m.step
}

func (m *Machine) Total() int {
	return m.schema.Len()
}

func (m *Machine) IsLast() bool {
	return m.step == m.schema.Len()-1
}

// Current returns the active question.
func (m *Machine) Current() questions.Descriptor {
	return m.schema.At(m.step)
}

// Progress is (step+1)/total and is defined in every phase.
func (m *Machine) Progress() float64 {
	return float64(m.step+1) / float64(m.schema.Len())
}

// Answers returns a copy of the recorded answers.
func (m *Machine) Answers() AnswerSet {
	return m.answers.clone()
}

// Prefill is the raw input a step shows, restoring any prior answer.
func (m *Machine) Prefill() string {
	q := m.Current()
	return q.Format(m.answers[q.ID])
}

func (m *Machine) Staged() []staging.PreviewHandle {
	return m.buffer.Handles()
}

func (m *Machine) Buffer() *staging.Buffer {
	return m.buffer
}

func (m *Machine) ready() error {
	switch m.phase {
	case PhaseIdle:
		return ErrNotMounted
	case PhaseSubmitting:
		return ErrSubmitting
	}
	return nil
}

// Answer validates raw against the active question. On failure nothing
// changes and a *questions.ValidationError is returned. On the last step
// the machine enters Submitting and returns the submission to run.
func (m *Machine) Answer(raw string) (*Submission, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	q := m.Current()
	value, err := q.Validate(raw, m.buffer.Len())
	if err != nil {
		return nil, err
	}
	if q.Kind != questions.KindFileMulti {
		m.answers[q.ID] = value
	}
	if !m.IsLast() {
		m.step++
		return nil, nil
	}
	m.phase = PhaseSubmitting
	return &Submission{Answers: m.answers.clone(), Images: m.buffer.Blobs()}, nil
}

// Back moves to the previous step, keeping every recorded answer.
func (m *Machine) Back() error {
	if err := m.ready(); err != nil {
		return err
	}
	if m.step == 0 {
		return ErrAtFirstStep
	}
	m.step--
	return nil
}

// Stage adds images while a FileMulti question is active.
func (m *Machine) Stage(blobs []staging.Blob) error {
	if err := m.ready(); err != nil {
		return err
	}
	q := m.Current()
	if q.Kind != questions.KindFileMulti {
		return ErrNotFileStep
	}
	for _, b := range blobs {
		if !q.Accepts(b.ContentType) {
			return &questions.ValidationError{Field: q.ID, Reason: fmt.Sprintf("%s: unsupported file type %s", b.Name, b.ContentType)}
		}
	}
	if !q.Multiple() && m.buffer.Len()+len(blobs) > 1 {
		return &questions.ValidationError{Field: q.ID, Reason: "only one image is allowed"}
	}
	return m.buffer.Stage(blobs)
}

// Unstage removes one image while a FileMulti question is active.
func (m *Machine) Unstage(index int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if m.Current().Kind != questions.KindFileMulti {
		return ErrNotFileStep
	}
	return m.buffer.Unstage(index)
}

// Succeed resets to Step(0) with answers and staged images cleared.
func (m *Machine) Succeed() error {
	if m.phase != PhaseSubmitting {
		return ErrNotPending
	}
	m.phase = PhaseAnswering
	m.reset()
	return nil
}

// Fail returns to the last step with answers and staged images intact.
func (m *Machine) Fail() error {
	if m.phase != PhaseSubmitting {
		return ErrNotPending
	}
	m.phase = PhaseAnswering
	m.step = m.schema.Len() - 1
	return nil
}

// Reset abandons the session content. It is refused while submitting.
func (m *Machine) Reset() error {
	if m.phase == PhaseSubmitting {
		return ErrSubmitting
	}
	m.reset()
	return nil
}

func (m *Machine) reset() {
	m.step = 0
	m.answers = make(AnswerSet)
	m.buffer.Clear()
}
