package listing

import (
	"errors"
	"fmt"
	"log"

	"booklisting/internal/wizard"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the single result of one pipeline run.
type Outcome struct {
	Status    Status   `json:"status"`
	RecordID  string   `json:"recordId,omitempty"`
	Images    []string `json:"images,omitempty"`
	Message   string   `json:"message,omitempty"`
	Retryable bool     `json:"retryable"`
	Err       error    `json:"-"`
}

func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func failure(err error, retryable bool) Outcome {
	return Outcome{Status: StatusFailure, Err: err, Message: userMessage(err), Retryable: retryable}
}

func userMessage(err error) string {
	var uerr *UploadError
	var werr *WriteError
	switch {
	case errors.As(err, &uerr):
		return fmt.Sprintf("%d of %d images could not be uploaded, please try again", len(uerr.Failures), uerr.Total)
	case errors.As(err, &werr):
		return "your listing could not be saved, please try again"
	case errors.Is(err, ErrMissingSubmitter):
		return "sign in to publish a listing"
	}
	return "submission failed"
}

// Notifier tells the user how a submission ended.
type Notifier interface {
	Notify(sessionID string, o Outcome)
}

// LogNotifier writes outcomes to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(sessionID string, o Outcome) {
	if o.OK() {
		log.Printf("session %s: listing %s published with %d images", sessionID, o.RecordID, len(o.Images))
		return
	}
	log.Printf("session %s: submission failed (retryable=%t): %v", sessionID, o.Retryable, o.Err)
}

// Reporter applies an outcome to the machine that produced the submission.
type Reporter struct {
	notifier Notifier
}

func NewReporter(n Notifier) *Reporter {
	if n == nil {
		n = LogNotifier{}
	}
	return &Reporter{notifier: n}
}

// Report resets the machine on success and returns it to the last step
// with everything intact on failure.
func (r *Reporter) Report(sessionID string, m *wizard.Machine, o Outcome) error {
	var err error
	if o.OK() {
		err = m.Succeed()
	} else {
		err = m.Fail()
	}
	if err != nil {
		return fmt.Errorf("report outcome: %w", err)
	}
	r.notifier.Notify(sessionID, o)
	return nil
}
