package repository

import (
	"context"
	"time"

	"BarSync/internal/domain/models"
	pkgkafka "BarSync/pkg/kafka"
)

const (
	EventOutcome = "sync.outcome"
	EventRun     = "sync.run"
	EventFailed  = "sync.failed"
	EventAudit   = "audit.report"
)

// Event is the envelope written to the events topic.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

type outcomePayload struct {
	models.Outcome
	Error string `json:"error,omitempty"`
}

type failedPayload struct {
	RunID  string `json:"run_id"`
	Group  string `json:"group"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

type auditPayload struct {
	Today          time.Time               `json:"today"`
	ThresholdDays  int                     `json:"threshold_days"`
	Counts         map[string]int          `json:"counts"`
	NeedsAttention []models.Classification `json:"needs_attention"`
	Summary        []models.GroupSummary   `json:"summary"`
}

// KafkaEventPublisher ships run events; outcomes are keyed by symbol.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	now      func() time.Time
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaEventPublisher) event(typ string, payload interface{}) Event {
	return Event{Type: typ, OccurredAt: p.now().UTC(), Payload: payload}
}

func (p *KafkaEventPublisher) PublishOutcome(ctx context.Context, o models.Outcome) error {
	payload := outcomePayload{Outcome: o}
	if o.Err != nil {
		payload.Error = o.Err.Error()
	}
	return p.producer.Publish(ctx, p.topic, []byte(o.Identifier.Symbol), p.event(EventOutcome, payload))
}

// PublishRun sends the run summary followed by one event per failed symbol.
func (p *KafkaEventPublisher) PublishRun(ctx context.Context, r *models.RunReport) error {
	msgs := []pkgkafka.Message{{Key: []byte(r.RunID), Value: p.event(EventRun, r)}}
	for _, g := range r.Manifest.Groups() {
		for _, e := range r.Manifest.Entries(g) {
			payload := failedPayload{RunID: r.RunID, Group: g, Symbol: e.Symbol, Reason: e.Reason}
			msgs = append(msgs, pkgkafka.Message{Key: []byte(e.Symbol), Value: p.event(EventFailed, payload)})
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaEventPublisher) PublishAudit(ctx context.Context, r *models.AuditReport) error {
	return p.producer.PublishMessage(ctx, p.topic, p.event(EventAudit, summarizeAudit(r)))
}

func summarizeAudit(r *models.AuditReport) auditPayload {
	counts := make(map[string]int, 4)
	for _, s := range []models.AuditStatus{models.AuditOK, models.AuditStale, models.AuditEmpty, models.AuditError} {
		counts[string(s)] = r.Count(s)
	}
	return auditPayload{
		Today:          r.Today,
		ThresholdDays:  int(r.Threshold.Hours() / 24),
		Counts:         counts,
		NeedsAttention: r.NeedsAttention,
		Summary:        r.Summary,
	}
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishOutcome(context.Context, models.Outcome) error    { return nil }
func (NopPublisher) PublishRun(context.Context, *models.RunReport) error     { return nil }
func (NopPublisher) PublishAudit(context.Context, *models.AuditReport) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
