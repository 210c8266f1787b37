package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-kart-insurance/internal/errors"
	"go-kart-insurance/pkg/catalog"
	"go-kart-insurance/pkg/models"
	"go-kart-insurance/pkg/validation"
)

type fakeClassifier struct {
	calls int32
	preds []models.Prediction
	err   error
	delay time.Duration
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, img *models.Image) ([]models.Prediction, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.preds, f.err
}

type fakeArchiver struct {
	mu     sync.Mutex
	labels []string
}

func (f *fakeArchiver) Submit(ctx context.Context, img *models.Image, label string, confidence float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, label)
	return "key", nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, fc *fakeClassifier, archiver Archiver, timeout time.Duration) ClassificationService {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	opts := Options{
		Validator:  validation.NewUploadValidator([]string{"image/jpeg", "image/png"}, 1<<20),
		Classifier: fc,
		Catalog:    cat,
		Timeout:    timeout,
	}
	if archiver != nil {
		opts.Archiver = archiver
	}
	return NewClassificationService(opts)
}

func TestClassify_Success(t *testing.T) {
	fc := &fakeClassifier{preds: []models.Prediction{
		{Label: "cheep charge", Confidence: 0.05},
		{Label: "B-Dasher", Confidence: 0.92},
	}}
	archiver := &fakeArchiver{}
	svc := newTestService(t, fc, archiver, time.Second)

	result, err := svc.Classify(context.Background(), pngBytes(t, 4, 4), "My Kart.png")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Top.Label != "B_Dasher" || result.Top.Confidence != 0.92 {
		t.Errorf("Top = %+v", result.Top)
	}
	if len(result.Predictions) != 2 || result.Predictions[1].Label != "Cheep_Charge" {
		t.Errorf("Predictions = %+v", result.Predictions)
	}
	if result.Backend != "fake" || result.Filename != "my-kart.png" {
		t.Errorf("result = %+v", result)
	}
	if len(archiver.labels) != 1 || archiver.labels[0] != "B_Dasher" {
		t.Errorf("archived labels = %v", archiver.labels)
	}
}

func TestClassify_InvalidInputNeverCallsBackend(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType apperrors.ErrorType
	}{
		{"empty", nil, apperrors.ErrorTypeMissing},
		{"text file", []byte("just some text, not an image"), apperrors.ErrorTypeValidation},
		{"too large", make([]byte, 2<<20), apperrors.ErrorTypeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClassifier{preds: []models.Prediction{{Label: "B_Dasher", Confidence: 0.9}}}
			svc := newTestService(t, fc, nil, time.Second)

			_, err := svc.Classify(context.Background(), tt.data, "x.png")
			if !apperrors.IsType(err, tt.wantType) {
				t.Errorf("error = %v, want type %s", err, tt.wantType)
			}
			if calls := atomic.LoadInt32(&fc.calls); calls != 0 {
				t.Errorf("backend called %d times", calls)
			}
		})
	}
}

func TestClassify_BackendFailures(t *testing.T) {
	tests := []struct {
		name     string
		fc       *fakeClassifier
		timeout  time.Duration
		wantType apperrors.ErrorType
		status   int
	}{
		{
			name:     "backend error",
			fc:       &fakeClassifier{err: errors.New("prediction API error: 503 - unavailable")},
			timeout:  time.Second,
			wantType: apperrors.ErrorTypeUpstream,
			status:   500,
		},
		{
			name:     "confidence out of range",
			fc:       &fakeClassifier{preds: []models.Prediction{{Label: "B_Dasher", Confidence: 1.5}}},
			timeout:  time.Second,
			wantType: apperrors.ErrorTypeUpstream,
			status:   500,
		},
		{
			name:     "no predictions",
			fc:       &fakeClassifier{preds: []models.Prediction{}},
			timeout:  time.Second,
			wantType: apperrors.ErrorTypeUpstream,
			status:   500,
		},
		{
			name:     "slow backend",
			fc:       &fakeClassifier{delay: time.Second, preds: []models.Prediction{{Label: "B_Dasher", Confidence: 0.9}}},
			timeout:  20 * time.Millisecond,
			wantType: apperrors.ErrorTypeTimeout,
			status:   504,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.fc, nil, tt.timeout)

			_, err := svc.Classify(context.Background(), pngBytes(t, 2, 2), "kart.png")
			if !apperrors.IsType(err, tt.wantType) {
				t.Fatalf("error = %v, want type %s", err, tt.wantType)
			}
			if got := apperrors.GetStatusCode(err); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestRecommendAndPackages(t *testing.T) {
	svc := newTestService(t, &fakeClassifier{}, nil, time.Second)

	got := svc.Recommend("B_Dasher")
	if len(got) != 1 || got[0].Name != "Star Power Premium" {
		t.Errorf("Recommend(B_Dasher) = %+v", got)
	}
	if got := svc.Recommend("Unknown_Kart"); got == nil || len(got) != 0 {
		t.Errorf("Recommend(unknown) = %#v, want empty slice", got)
	}
	if len(svc.Packages()) != 3 {
		t.Errorf("Packages() len = %d", len(svc.Packages()))
	}
	if _, err := svc.Package("nope"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Package(nope) error = %v", err)
	}
	if p, err := svc.Package("star"); err != nil || p.ID != "star" {
		t.Errorf("Package(star) = %+v, %v", p, err)
	}
}
