package classifier

import (
	"context"
	"errors"

	"go-kart-insurance/pkg/models"
)

// DefaultKartTypes are the classes the kart model was trained on
var DefaultKartTypes = []string{
	"Cheep_Charge", // standard
	"B_Dasher",     // performance
	"Flame_Flyer",  // special
}

// ErrMalformedResponse marks a backend reply that parsed but did not have the expected shape
var ErrMalformedResponse = errors.New("malformed inference response")

// Classifier sends one image to an inference backend
type Classifier interface {
	// Name identifies the backend in responses, logs and metrics
	Name() string

	// Classify returns the raw predictions of the backend. The caller is
	// responsible for normalization.
	Classify(ctx context.Context, img *models.Image) ([]models.Prediction, error)
}

// HealthChecker is implemented by backends that can be probed
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}
