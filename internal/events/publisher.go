package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"product-import-service/internal/models"
)

// SubjectImportCompleted is published once per finished import
const SubjectImportCompleted = "import.completed"

// ImportCompletedEvent represents the event published when an import finishes
type ImportCompletedEvent struct {
	EventType      string            `json:"event_type"`
	RequestID      string            `json:"request_id"`
	JobID          string            `json:"job_id,omitempty"`
	Source         models.SourceType `json:"source"`
	Success        bool              `json:"success"`
	ErrorCode      string            `json:"error_code,omitempty"`
	TotalExtracted int               `json:"total_extracted"`
	TotalImported  int               `json:"total_imported"`
	TotalErrors    int               `json:"total_errors"`
	ReadyProducts  int               `json:"ready_products"`
	DurationMs     int64             `json:"duration_ms"`
	Timestamp      time.Time         `json:"timestamp"`
}

// NewImportCompletedEvent summarizes an import result
func NewImportCompletedEvent(result *models.ImportResult) ImportCompletedEvent {
	event := ImportCompletedEvent{
		EventType:      SubjectImportCompleted,
		RequestID:      result.Metadata.RequestID,
		JobID:          result.Metadata.JobID,
		Source:         result.Metadata.Source,
		Success:        result.Success,
		TotalExtracted: result.Metadata.TotalExtracted,
		TotalImported:  result.Metadata.TotalImported,
		TotalErrors:    result.Metadata.TotalErrors,
		DurationMs:     result.Metadata.DurationMs,
		Timestamp:      time.Now().UTC(),
	}
	if result.Error != nil {
		event.ErrorCode = result.Error.Code
	}
	for _, p := range result.Products {
		if p.Status == models.ProductStatusReady {
			event.ReadyProducts++
		}
	}
	return event
}

// Publisher publishes import events on NATS. A nil Publisher drops events,
// so the service runs unchanged without a broker.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to the NATS server at natsURL
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS_URL not set")
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("product-import-service-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishImportCompleted publishes the summary of a finished import
func (p *Publisher) PublishImportCompleted(ctx context.Context, result *models.ImportResult) error {
	if p == nil || p.conn == nil || result == nil {
		return nil
	}

	data, err := json.Marshal(NewImportCompletedEvent(result))
	if err != nil {
		return fmt.Errorf("failed to marshal import event: %w", err)
	}
	if err := p.conn.Publish(SubjectImportCompleted, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", SubjectImportCompleted, err)
	}

	p.logger.WithFields(logrus.Fields{
		"request_id": result.Metadata.RequestID,
		"source":     result.Metadata.Source,
	}).Debug("Published import event")
	return nil
}

// Close drains the connection
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
