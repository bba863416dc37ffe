package wizard

import "booklisting/internal/questions"

// Snapshot is the serializable part of a session. Staged images are not
// included; they never leave the process that staged them.
type Snapshot struct {
	Step    int            `json:"step"`
	Answers map[string]any `json:"answers"`
}

func (m *Machine) Snapshot() Snapshot {
	return Snapshot{Step: m.step, Answers: m.answers.clone()}
}

// Restore mounts the machine from a snapshot. Answers that no longer
// validate are dropped and the step is pulled back to the first question
// that is not satisfied, so no step is ever past an unvalidated one.
func (m *Machine) Restore(s Snapshot) {
	m.phase = PhaseAnswering
	m.answers = make(AnswerSet)
	step := s.Step
	if step < 0 {
		step = 0
	}
	if last := m.schema.Len() - 1; step > last {
		step = last
	}
	for i := 0; i < m.schema.Len(); i++ {
		q := m.schema.At(i)
		if q.Kind == questions.KindFileMulti {
			if i < step && m.buffer.Len() == 0 {
				step = i
			}
			continue
		}
		raw, ok := s.Answers[q.ID]
		if !ok {
			if i < step {
				step = i
			}
			continue
		}
		value, err := q.Validate(q.Format(raw), 0)
		if err != nil {
			if i < step {
				step = i
			}
			continue
		}
		m.answers[q.ID] = value
	}
	m.step = step
}
