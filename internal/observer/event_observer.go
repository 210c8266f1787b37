package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-kart-insurance/internal/logger"
	"go-kart-insurance/internal/metrics"
)

// ClassificationEvent represents one step of handling an upload
type ClassificationEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Backend        string                 `json:"backend"`
	Filename       string                 `json:"filename,omitempty"`
	Label          string                 `json:"label,omitempty"`
	Confidence     float64                `json:"confidence,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	Outcome        string                 `json:"outcome,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of classification event
type EventType string

const (
	// ClassificationStarted when a valid image is handed to the backend
	ClassificationStarted EventType = "classification_started"
	// ClassificationCompleted when the backend answered with usable predictions
	ClassificationCompleted EventType = "classification_completed"
	// ClassificationFailed when the backend call or its reply failed
	ClassificationFailed EventType = "classification_failed"
	// UploadArchived when a background archive upload finished
	UploadArchived EventType = "upload_archived"
)

// Inference outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ClassificationEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ClassificationEvent)
}

// LoggingObserver logs classification events
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(log *logrus.Logger) Observer {
	return &LoggingObserver{logger: log}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, event ClassificationEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"backend":            event.Backend,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
		"success":            event.Success,
	}
	if event.Filename != "" {
		fields["filename"] = event.Filename
	}
	if event.Label != "" {
		fields["label"] = event.Label
		fields["confidence"] = event.Confidence
	}
	if event.Outcome != "" {
		fields["outcome"] = event.Outcome
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}
	if id := logger.RequestID(ctx); id != "" {
		fields["request_id"] = id
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ClassificationStarted:
		entry.Debug("Classification started")
	case ClassificationCompleted:
		entry.Info("Classification completed")
	case ClassificationFailed:
		entry.Error("Classification failed")
	case UploadArchived:
		if event.Success {
			entry.Debug("Upload archived")
		} else {
			entry.Warn("Upload archive failed")
		}
	default:
		entry.Info("Classification event occurred")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver feeds the Prometheus collectors and keeps running totals
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalRequests       int64
	successful          int64
	failed              int64
	timedOut            int64
	totalProcessingTime time.Duration
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (o *MetricsObserver) OnEvent(ctx context.Context, event ClassificationEvent) {
	switch event.EventType {
	case ClassificationCompleted:
		metrics.RecordInference(event.Backend, OutcomeSuccess, event.ProcessingTime)
		metrics.IncrementPrediction(event.Label)
	case ClassificationFailed:
		outcome := event.Outcome
		if outcome == "" {
			outcome = OutcomeError
		}
		metrics.RecordInference(event.Backend, outcome, event.ProcessingTime)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch event.EventType {
	case ClassificationStarted:
		o.totalRequests++
	case ClassificationCompleted:
		o.successful++
		o.totalProcessingTime += event.ProcessingTime
	case ClassificationFailed:
		o.failed++
		if event.Outcome == OutcomeTimeout {
			o.timedOut++
		}
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current totals
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.successful > 0 {
		avg = o.totalProcessingTime / time.Duration(o.successful)
	}

	return map[string]interface{}{
		"total_classifications":      o.totalRequests,
		"successful_classifications": o.successful,
		"failed_classifications":     o.failed,
		"timed_out_classifications":  o.timedOut,
		"avg_processing_time_ms":     avg.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	wg        sync.WaitGroup
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{observers: make([]Observer, 0)}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer on its own goroutine
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ClassificationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		p.wg.Add(1)
		go func(obs Observer) {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(obs)
	}
}

// Wait blocks until all delivered events have been handled
func (p *EventPublisher) Wait() {
	p.wg.Wait()
}
