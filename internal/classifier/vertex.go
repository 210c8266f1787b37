package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"go-kart-insurance/internal/config"
	"go-kart-insurance/pkg/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type vertexInstance struct {
	Content string `json:"content"`
}

type vertexParameters struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MaxPredictions      int     `json:"maxPredictions"`
}

type vertexRequest struct {
	Instances  []vertexInstance `json:"instances"`
	Parameters vertexParameters `json:"parameters"`
}

type vertexPrediction struct {
	IDs          []string  `json:"ids,omitempty"`
	DisplayNames []string  `json:"displayNames"`
	Confidences  []float64 `json:"confidences"`
}

type vertexResponse struct {
	Predictions      []vertexPrediction `json:"predictions"`
	DeployedModelID  string             `json:"deployedModelId"`
	Model            string             `json:"model"`
	ModelDisplayName string             `json:"modelDisplayName"`
	ModelVersionID   string             `json:"modelVersionId"`
}

// VertexClient calls an AutoML image classification endpoint on Vertex AI
type VertexClient struct {
	url        string
	tokens     oauth2.TokenSource
	client     *http.Client
	parameters vertexParameters
}

// NewVertexClient creates a client for the configured endpoint. The token
// source is owned by the caller and may be shared.
func NewVertexClient(cfg config.VertexConfig, tokens oauth2.TokenSource, client *http.Client) *VertexClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &VertexClient{
		url:    cfg.PredictURL(),
		tokens: tokens,
		client: client,
		parameters: vertexParameters{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxPredictions:      cfg.MaxPredictions,
		},
	}
}

func (c *VertexClient) Name() string { return config.BackendVertex }

func (c *VertexClient) Classify(ctx context.Context, img *models.Image) ([]models.Prediction, error) {
	token, err := tokenWithContext(ctx, c.tokens)
	if err != nil {
		return nil, fmt.Errorf("obtain access token: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token.AccessToken)

	body := vertexRequest{
		Instances:  []vertexInstance{{Content: base64.StdEncoding.EncodeToString(img.Data)}},
		Parameters: c.parameters,
	}

	var resp vertexResponse
	if err := postJSON(ctx, c.client, c.url, headers, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("%w: no predictions in response", ErrMalformedResponse)
	}
	// One instance was sent, so only the first entry is ours
	first := resp.Predictions[0]
	if len(first.DisplayNames) != len(first.Confidences) {
		return nil, fmt.Errorf("%w: %d display names but %d confidences",
			ErrMalformedResponse, len(first.DisplayNames), len(first.Confidences))
	}

	out := make([]models.Prediction, 0, len(first.DisplayNames))
	for i, name := range first.DisplayNames {
		out = append(out, models.Prediction{Label: name, Confidence: first.Confidences[i]})
	}
	return out, nil
}

// tokenWithContext bounds a token fetch by ctx. oauth2 token sources do not
// take a per-call context.
func tokenWithContext(ctx context.Context, ts oauth2.TokenSource) (*oauth2.Token, error) {
	type result struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan result, 1)
	go func() {
		t, err := ts.Token()
		done <- result{t, err}
	}()

	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewGoogleTokenSource builds a service account token source from either a
// credentials JSON file or an inline client email and private key.
func NewGoogleTokenSource(ctx context.Context, cfg config.VertexConfig) (oauth2.TokenSource, error) {
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials file: %w", err)
		}
		return jwtCfg.TokenSource(ctx), nil
	}

	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("service account email and private key are required")
	}
	jwtCfg := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{cloudPlatformScope},
		TokenURL:   google.JWTTokenURL,
	}
	return jwtCfg.TokenSource(ctx), nil
}
