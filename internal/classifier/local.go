package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go-kart-insurance/internal/config"
	"go-kart-insurance/pkg/models"
)

type localRequest struct {
	Image string `json:"image"`
}

// localResponse covers every shape the Python service has produced:
//
//	{"success": true, "predictions": {"kartType": "B_Dasher", "confidence": 0.92}}
//	{"class": "B_Dasher", "confidence": 0.92}
//	{"class": "B_Dasher", "confidence": 0.92, "predictions": {"B_Dasher": 0.92, ...}}
type localResponse struct {
	Success     *bool           `json:"success"`
	Error       string          `json:"error"`
	Predictions json.RawMessage `json:"predictions"`
	Class       string          `json:"class"`
	Confidence  *float64        `json:"confidence"`
}

type localTopPrediction struct {
	KartType   string   `json:"kartType"`
	Confidence *float64 `json:"confidence"`
}

// LocalClient calls a separately hosted inference service with a base64 body
type LocalClient struct {
	url    string
	client *http.Client
}

func NewLocalClient(cfg config.LocalInferenceConfig, client *http.Client) *LocalClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &LocalClient{url: cfg.URL, client: client}
}

func (c *LocalClient) Name() string { return config.BackendLocal }

func (c *LocalClient) Classify(ctx context.Context, img *models.Image) ([]models.Prediction, error) {
	body := localRequest{Image: base64.StdEncoding.EncodeToString(img.Data)}

	var resp localResponse
	if err := postJSON(ctx, c.client, c.url, nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.predictions()
}

func (r *localResponse) predictions() ([]models.Prediction, error) {
	if r.Success != nil && !*r.Success {
		msg := r.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("inference service reported failure: %s", msg)
	}

	raw := strings.TrimSpace(string(r.Predictions))
	if raw != "" && raw != "null" {
		var top localTopPrediction
		if err := json.Unmarshal(r.Predictions, &top); err == nil && top.KartType != "" {
			if top.Confidence == nil {
				return nil, fmt.Errorf("%w: prediction has no confidence", ErrMalformedResponse)
			}
			return []models.Prediction{{Label: top.KartType, Confidence: *top.Confidence}}, nil
		}

		var scores map[string]float64
		if err := json.Unmarshal(r.Predictions, &scores); err == nil && len(scores) > 0 {
			// Map order is random; label order keeps equal scores stable
			labels := make([]string, 0, len(scores))
			for label := range scores {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			out := make([]models.Prediction, 0, len(labels))
			for _, label := range labels {
				out = append(out, models.Prediction{Label: label, Confidence: scores[label]})
			}
			return out, nil
		}
	}

	if r.Class != "" {
		if r.Confidence == nil {
			return nil, fmt.Errorf("%w: class has no confidence", ErrMalformedResponse)
		}
		return []models.Prediction{{Label: r.Class, Confidence: *r.Confidence}}, nil
	}

	return nil, fmt.Errorf("%w: no prediction in response", ErrMalformedResponse)
}

// CheckHealth probes the service's /health route next to the predict URL
func (c *LocalClient) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid inference URL: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
