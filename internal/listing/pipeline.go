package listing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"booklisting/internal/metrics"
	"booklisting/internal/models"
	"booklisting/internal/staging"
	"booklisting/internal/wizard"
)

// ObjectStore uploads one image and returns where it can be fetched.
type ObjectStore interface {
	Upload(ctx context.Context, blob staging.Blob) (*models.StoredObject, error)
}

// DocumentStore creates one record atomically and returns its id.
type DocumentStore interface {
	CreateRecord(ctx context.Context, collection string, record any) (string, error)
}

// Submitter is the identity attached to a listing.
type Submitter struct {
	ID          string
	DisplayName string
}

type Config struct {
	Collection string
	// Concurrency caps parallel uploads; zero means one goroutine per image.
	Concurrency int
	// UploadTimeout bounds each upload; zero leaves it to the store client.
	UploadTimeout time.Duration
}

type Pipeline struct {
	objects ObjectStore
	docs    DocumentStore
	cfg     Config
	metrics *metrics.Collectors
}

func NewPipeline(objects ObjectStore, docs DocumentStore, cfg Config, m *metrics.Collectors) *Pipeline {
	if cfg.Collection == "" {
		cfg.Collection = models.ListingsCollection
	}
	return &Pipeline{objects: objects, docs: docs, cfg: cfg, metrics: m}
}

// Submit uploads every image, then writes the listing. The record is only
// written when all uploads succeeded, and its image URLs follow the order
// of sub.Images regardless of completion order.
func (p *Pipeline) Submit(ctx context.Context, sub *wizard.Submission, who Submitter) Outcome {
	if sub == nil {
		return failure(errors.New("empty submission"), false)
	}
	if who.ID == "" {
		p.metrics.Submission("rejected")
		return failure(ErrMissingSubmitter, false)
	}

	urls, err := p.uploadAll(ctx, sub.Images)
	if err != nil {
		p.metrics.Submission("upload_error")
		log.Printf("submit for %s: %v", who.ID, err)
		return failure(err, true)
	}

	record := &models.Listing{
		Fields:               map[string]any(sub.Answers),
		Images:               urls,
		SubmitterID:          who.ID,
		SubmitterDisplayName: who.DisplayName,
	}
	id, err := p.docs.CreateRecord(ctx, p.cfg.Collection, record)
	if err != nil {
		p.metrics.Submission("write_error")
		log.Printf("submit for %s: %d images orphaned: %v", who.ID, len(urls), err)
		return failure(&WriteError{Err: err}, true)
	}
	p.metrics.Submission("success")
	return Outcome{Status: StatusSuccess, RecordID: id, Images: urls}
}

func (p *Pipeline) uploadAll(ctx context.Context, images []staging.Blob) ([]string, error) {
	urls := make([]string, len(images))
	errs := make([]error, len(images))

	// The group context cancels siblings after the first failure, but every
	// goroutine is still awaited so the final state is known.
	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.Concurrency > 0 {
		g.SetLimit(p.cfg.Concurrency)
	}
	for i, blob := range images {
		i, blob := i, blob
		g.Go(func() error {
			obj, err := p.uploadOne(gctx, blob)
			if err != nil {
				errs[i] = err
				return err
			}
			urls[i] = obj.URL
			return nil
		})
	}
	if g.Wait() == nil {
		return urls, nil
	}

	uerr := &UploadError{Total: len(images)}
	for i, err := range errs {
		switch {
		case err == nil:
		case aborted(ctx, gctx, err):
			uerr.Aborted++
		default:
			uerr.Failures = append(uerr.Failures, ImageFailure{Index: i, Name: images[i].Name, Err: err})
		}
	}
	return nil, uerr
}

// aborted reports whether err only reflects a sibling failure cancelling
// the group, not a problem with this image.
func aborted(parent, group context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && group.Err() != nil && parent.Err() == nil
}

func (p *Pipeline) uploadOne(ctx context.Context, blob staging.Blob) (*models.StoredObject, error) {
	if p.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.UploadTimeout)
		defer cancel()
	}
	start := time.Now()
	obj, err := p.objects.Upload(ctx, blob)
	if err == nil && (obj == nil || obj.URL == "") {
		err = fmt.Errorf("upload %s: store returned no url", blob.Name)
	}
	p.metrics.Upload(time.Since(start), err)
	return obj, err
}
