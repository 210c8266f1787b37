package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"go-kart-insurance/internal/logger"
	"go-kart-insurance/internal/metrics"
	"go-kart-insurance/pkg/models"
	"go-kart-insurance/pkg/validation"
)

const defaultUploadTimeout = 30 * time.Second

// ResultFunc is called once per archived upload, from a worker goroutine
type ResultFunc func(ctx context.Context, key string, err error)

// Archiver copies classified uploads to an ObjectStore in the background.
// Failures never reach the request that produced the upload.
type Archiver struct {
	store    ObjectStore
	pool     *WorkerPool
	timeout  time.Duration
	now      func() time.Time
	onResult ResultFunc
}

func NewArchiver(store ObjectStore, workers int, onResult ResultFunc) *Archiver {
	pool := NewWorkerPool(workers)
	pool.Start()
	return &Archiver{
		store:    store,
		pool:     pool,
		timeout:  defaultUploadTimeout,
		now:      time.Now,
		onResult: onResult,
	}
}

// Key returns the object key for an upload received at t
func Key(t time.Time, id, filename string) string {
	return fmt.Sprintf("%s/%s-%s", t.UTC().Format("2006/01/02"), id, validation.SanitizeFilename(filename))
}

// Submit queues img for upload and returns the key it will be stored under.
// A full queue drops the upload.
func (a *Archiver) Submit(ctx context.Context, img *models.Image, label string, confidence float64) (string, error) {
	key := Key(a.now(), uuid.NewString(), img.Filename)
	obj := Object{
		Key:         key,
		Data:        img.Data,
		ContentType: img.ContentType,
		Metadata: map[string]string{
			"label":      label,
			"confidence": strconv.FormatFloat(confidence, 'f', 4, 64),
			"filename":   img.Filename,
		},
	}
	// The job outlives the request, keep only its id
	requestID := logger.RequestID(ctx)

	err := a.pool.TrySubmit(func() {
		jobCtx, cancel := context.WithTimeout(logger.WithRequestID(context.Background(), requestID), a.timeout)
		defer cancel()

		err := a.store.Put(jobCtx, obj)
		if err != nil {
			metrics.IncrementArchiveUpload("failed")
		} else {
			metrics.IncrementArchiveUpload("success")
		}
		if a.onResult != nil {
			a.onResult(jobCtx, key, err)
		}
	})
	if err != nil {
		metrics.IncrementArchiveUpload("dropped")
		return "", err
	}
	return key, nil
}

// Backend names the underlying store
func (a *Archiver) Backend() string { return a.store.Name() }

// Close waits for queued uploads to finish
func (a *Archiver) Close() {
	a.pool.Close()
}
