package service

import (
	"context"
	"errors"
	"time"

	"go-kart-insurance/internal/classifier"
	apperrors "go-kart-insurance/internal/errors"
	"go-kart-insurance/internal/logger"
	"go-kart-insurance/internal/observer"
	"go-kart-insurance/internal/preprocess"
	"go-kart-insurance/pkg/catalog"
	"go-kart-insurance/pkg/models"
	"go-kart-insurance/pkg/validation"
)

// ClassificationService turns an upload into canonical predictions and
// package recommendations.
type ClassificationService interface {
	// Classify validates the upload and asks the inference backend about it
	Classify(ctx context.Context, data []byte, filename string) (*models.Classification, error)

	// Catalog lookups
	Recommend(label string) []models.Package
	Packages() []models.Package
	Package(id string) (models.Package, error)

	Backend() string
	CheckBackend(ctx context.Context) error
}

// Archiver receives accepted uploads after classification
type Archiver interface {
	Submit(ctx context.Context, img *models.Image, label string, confidence float64) (string, error)
}

// Options bundles the collaborators of the classification service
type Options struct {
	Validator  *validation.UploadValidator
	Resizer    *preprocess.Resizer
	Classifier classifier.Classifier
	Normalizer *classifier.Normalizer
	Catalog    *catalog.Catalog
	Publisher  observer.Subject
	Archiver   Archiver
	Timeout    time.Duration
}

type classificationService struct {
	validator  *validation.UploadValidator
	resizer    *preprocess.Resizer
	classifier classifier.Classifier
	normalizer *classifier.Normalizer
	catalog    *catalog.Catalog
	publisher  observer.Subject
	archiver   Archiver
	timeout    time.Duration
}

func NewClassificationService(opts Options) ClassificationService {
	if opts.Normalizer == nil {
		opts.Normalizer = classifier.NewNormalizer(nil)
	}
	if opts.Resizer == nil {
		opts.Resizer = preprocess.NewResizer(0)
	}
	if opts.Publisher == nil {
		opts.Publisher = observer.NewEventPublisher()
	}
	return &classificationService{
		validator:  opts.Validator,
		resizer:    opts.Resizer,
		classifier: opts.Classifier,
		normalizer: opts.Normalizer,
		catalog:    opts.Catalog,
		publisher:  opts.Publisher,
		archiver:   opts.Archiver,
		timeout:    opts.Timeout,
	}
}

func (s *classificationService) Backend() string {
	return s.classifier.Name()
}

func (s *classificationService) Classify(ctx context.Context, data []byte, filename string) (*models.Classification, error) {
	upload, err := s.validator.Validate(data, filename)
	if err != nil {
		return nil, err
	}

	img, err := s.resizer.Apply(upload)
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid image data", err)
	}

	backend := s.classifier.Name()
	s.publisher.NotifyObservers(ctx, observer.ClassificationEvent{
		EventType: observer.ClassificationStarted,
		Backend:   backend,
		Filename:  img.Filename,
		Metadata:  map[string]interface{}{"width": img.Width, "height": img.Height, "bytes": len(img.Data)},
	})

	start := time.Now()
	preds, err := s.callBackend(ctx, img)
	elapsed := time.Since(start)
	if err != nil {
		outcome := observer.OutcomeError
		if apperrors.IsType(err, apperrors.ErrorTypeTimeout) {
			outcome = observer.OutcomeTimeout
		}
		s.publisher.NotifyObservers(ctx, observer.ClassificationEvent{
			EventType:      observer.ClassificationFailed,
			Backend:        backend,
			Filename:       img.Filename,
			ProcessingTime: elapsed,
			Outcome:        outcome,
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	top := preds[0]
	s.publisher.NotifyObservers(ctx, observer.ClassificationEvent{
		EventType:      observer.ClassificationCompleted,
		Backend:        backend,
		Filename:       img.Filename,
		Label:          top.Label,
		Confidence:     top.Confidence,
		ProcessingTime: elapsed,
		Success:        true,
	})

	if s.archiver != nil {
		// The original upload is archived, not the resized copy
		if _, err := s.archiver.Submit(ctx, upload, top.Label, top.Confidence); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Upload not archived")
		}
	}

	return &models.Classification{
		Backend:     backend,
		Filename:    img.Filename,
		Top:         top,
		Predictions: preds,
		Elapsed:     elapsed,
	}, nil
}

// callBackend runs one bounded backend call and maps its failure to an AppError
func (s *classificationService) callBackend(ctx context.Context, img *models.Image) ([]models.Prediction, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.classifier.Classify(callCtx, img)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("Inference backend timed out", err)
		}
		return nil, apperrors.NewUpstreamError("Error processing image", err)
	}

	preds, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, apperrors.NewUpstreamError("Error processing image", err)
	}
	return preds, nil
}

func (s *classificationService) Recommend(label string) []models.Package {
	return s.catalog.Recommend(label)
}

func (s *classificationService) Packages() []models.Package {
	return s.catalog.All()
}

func (s *classificationService) Package(id string) (models.Package, error) {
	p, ok := s.catalog.Get(id)
	if !ok {
		return models.Package{}, apperrors.NewNotFoundError("Package not found", nil)
	}
	return p, nil
}

// CheckBackend probes the backend when it supports health checks
func (s *classificationService) CheckBackend(ctx context.Context) error {
	hc, ok := s.classifier.(classifier.HealthChecker)
	if !ok {
		return nil
	}
	return hc.CheckHealth(ctx)
}
