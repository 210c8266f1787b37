package factory

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"go-kart-insurance/internal/classifier"
	"go-kart-insurance/internal/config"
	"go-kart-insurance/internal/storage"
	"go-kart-insurance/pkg/validation"
)

// ClassifierFactory creates inference backends
type ClassifierFactory interface {
	CreateClassifier(ctx context.Context, cfg *config.Config) (classifier.Classifier, error)
}

// StorageFactory creates archive stores. A nil store means archiving is off.
type StorageFactory interface {
	CreateStorage(ctx context.Context, cfg config.ArchiveConfig) (storage.ObjectStore, error)
}

// TokenSourceFunc builds the Vertex credential source
type TokenSourceFunc func(ctx context.Context, cfg config.VertexConfig) (oauth2.TokenSource, error)

type classifierFactory struct {
	client    *http.Client
	tokens    TokenSourceFunc
	endpoints *validation.URLValidator
}

// NewClassifierFactory creates a factory sharing one HTTP client across backends
func NewClassifierFactory(client *http.Client, tokens TokenSourceFunc) ClassifierFactory {
	if client == nil {
		client = classifier.NewHTTPClient()
	}
	if tokens == nil {
		tokens = classifier.NewGoogleTokenSource
	}
	return &classifierFactory{
		client:    client,
		tokens:    tokens,
		endpoints: validation.NewURLValidator(),
	}
}

func (f *classifierFactory) CreateClassifier(ctx context.Context, cfg *config.Config) (classifier.Classifier, error) {
	switch cfg.InferenceBackend {
	case config.BackendVertex:
		if cfg.Vertex.APIBaseURL != "" {
			if err := f.endpoints.ValidateEndpoint(cfg.Vertex.APIBaseURL); err != nil {
				return nil, fmt.Errorf("vertex base URL: %w", err)
			}
		}
		ts, err := f.tokens(ctx, cfg.Vertex)
		if err != nil {
			return nil, fmt.Errorf("vertex credentials: %w", err)
		}
		return classifier.NewVertexClient(cfg.Vertex, ts, f.client), nil

	case config.BackendLocal:
		if err := f.endpoints.ValidateEndpoint(cfg.LocalInference.URL); err != nil {
			return nil, fmt.Errorf("local inference URL: %w", err)
		}
		return classifier.NewLocalClient(cfg.LocalInference, f.client), nil

	case config.BackendDemo:
		return classifier.NewDemoClassifier(nil, 0), nil

	default:
		return nil, fmt.Errorf("unsupported inference backend: %s", cfg.InferenceBackend)
	}
}

type storageFactory struct{}

func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

func (f *storageFactory) CreateStorage(ctx context.Context, cfg config.ArchiveConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveAzure:
		return storage.NewAzureStorage(cfg)
	case config.ArchiveMinio:
		return storage.NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ClassifierFactory ClassifierFactory
	StorageFactory    StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		ClassifierFactory: NewClassifierFactory(nil, nil),
		StorageFactory:    NewStorageFactory(),
	}
}
