package container

import (
	"context"
	"fmt"
	"net/http"

	"go-kart-insurance/internal/classifier"
	"go-kart-insurance/internal/config"
	"go-kart-insurance/internal/factory"
	"go-kart-insurance/internal/logger"
	"go-kart-insurance/internal/observer"
	"go-kart-insurance/internal/preprocess"
	"go-kart-insurance/internal/service"
	"go-kart-insurance/internal/storage"
	"go-kart-insurance/internal/transport"
	"go-kart-insurance/pkg/catalog"
	"go-kart-insurance/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	catalog    *catalog.Catalog
	classifier classifier.Classifier
	publisher  *observer.EventPublisher
	stats      *observer.MetricsObserver
	archiver   *storage.Archiver
	service    service.ClassificationService
	handler    http.Handler
}

// NewContainer builds the dependency graph with the default factories
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	return NewContainerWithFactory(ctx, cfg, factory.NewComponentFactory())
}

func NewContainerWithFactory(ctx context.Context, cfg *config.Config, f *factory.ComponentFactory) (*Container, error) {
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	backend, err := f.ClassifierFactory.CreateClassifier(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference backend: %w", err)
	}

	publisher := observer.NewEventPublisher()
	stats := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(stats)

	store, err := f.StorageFactory.CreateStorage(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive storage: %w", err)
	}

	c := &Container{
		config:     cfg,
		catalog:    cat,
		classifier: backend,
		publisher:  publisher,
		stats:      stats,
	}

	uploads := validation.NewUploadValidator(cfg.AllowedImageTypes, cfg.MaxImageSize)
	uploads.SetMaxPixels(cfg.MaxImagePixels)

	opts := service.Options{
		Validator:  uploads,
		Resizer:    preprocess.NewResizer(cfg.ResizeMaxDimension),
		Classifier: backend,
		Normalizer: classifier.NewNormalizer(knownLabels(cat)),
		Catalog:    cat,
		Publisher:  publisher,
		Timeout:    cfg.InferenceTimeout,
	}
	if store != nil {
		c.archiver = storage.NewArchiver(store, cfg.Archive.Workers, c.onArchived)
		opts.Archiver = c.archiver
	}

	c.service = service.NewClassificationService(opts)
	c.handler = transport.NewHandler(c.service, cfg, stats)
	return c, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// knownLabels merges the model's classes with every label the catalog names
func knownLabels(cat *catalog.Catalog) []string {
	labels := append([]string(nil), classifier.DefaultKartTypes...)
	return append(labels, cat.Labels()...)
}

func (c *Container) onArchived(ctx context.Context, key string, err error) {
	event := observer.ClassificationEvent{
		EventType: observer.UploadArchived,
		Backend:   c.archiver.Backend(),
		Success:   err == nil,
		Metadata:  map[string]interface{}{"key": key},
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	c.publisher.NotifyObservers(ctx, event)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the classification service
func (c *Container) Service() service.ClassificationService {
	return c.service
}

// Close drains pending archive uploads and observer deliveries
func (c *Container) Close() {
	if c.archiver != nil {
		c.archiver.Close()
	}
	c.publisher.Wait()
}
