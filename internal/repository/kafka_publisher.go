package repository

import (
	"context"
	"fmt"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	pkgkafka "CropCast/pkg/kafka"
)

// KafkaRunPublisher announces completed forecast runs on a Kafka topic,
// keyed by commodity so per-commodity ordering holds.
type KafkaRunPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.Publisher = (*KafkaRunPublisher)(nil)

func NewKafkaRunPublisher(producer *pkgkafka.Producer, topic string) *KafkaRunPublisher {
	return &KafkaRunPublisher{producer: producer, topic: topic}
}

func (p *KafkaRunPublisher) PublishRun(ctx context.Context, run *models.ForecastRun) error {
	if run == nil {
		return fmt.Errorf("run nil")
	}
	steps := make([]map[string]interface{}, len(run.Steps))
	for i, s := range run.Steps {
		steps[i] = map[string]interface{}{
			"target_date": s.TargetDate.Format("2006-01-02"),
			"price":       s.Price,
			"lower":       s.Lower,
			"upper":       s.Upper,
		}
	}
	factors := make([]map[string]interface{}, len(run.Factors))
	for i, f := range run.Factors {
		factors[i] = map[string]interface{}{
			"factor": f.Factor,
			"impact": f.Impact,
		}
	}
	return p.producer.Publish(ctx, p.topic, []byte(run.Commodity), map[string]interface{}{
		"run_id":     run.RunID,
		"commodity":  run.Commodity,
		"kind":       run.Kind,
		"base_date":  run.BaseDate.Format("2006-01-02"),
		"created_at": run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"steps":      steps,
		"factors":    factors,
	})
}

func (p *KafkaRunPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
