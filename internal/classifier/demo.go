package classifier

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go-kart-insurance/internal/config"
	"go-kart-insurance/pkg/models"
)

// DemoClassifier stands in for a model: it picks a random kart type with a
// confidence in [0.85, 0.99].
type DemoClassifier struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	labels []string
}

func NewDemoClassifier(labels []string, seed int64) *DemoClassifier {
	if len(labels) == 0 {
		labels = DefaultKartTypes
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DemoClassifier{
		rnd:    rand.New(rand.NewSource(seed)),
		labels: append([]string(nil), labels...),
	}
}

func (d *DemoClassifier) Name() string { return config.BackendDemo }

func (d *DemoClassifier) Classify(ctx context.Context, _ *models.Image) ([]models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	label := d.labels[d.rnd.Intn(len(d.labels))]
	conf := 0.85 + d.rnd.Float64()*0.14
	d.mu.Unlock()

	return []models.Prediction{{Label: label, Confidence: math.Round(conf*100) / 100}}, nil
}
