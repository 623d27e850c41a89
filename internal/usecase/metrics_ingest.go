package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	mid "CropCast/internal/middleware"
	pkgkafka "CropCast/pkg/kafka"
)

// MetricsIngestHandler consumes daily metric messages and feeds the ingest
// pipeline.
type MetricsIngestHandler struct {
	topic   string
	pipe    *mid.IngestPipeline
	metrics domrepo.Metrics
}

func NewMetricsIngestHandler(topic string, pipe *mid.IngestPipeline, metrics domrepo.Metrics) *MetricsIngestHandler {
	return &MetricsIngestHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *MetricsIngestHandler) Topic() string { return h.topic }

// metricMessage is the wire schema on the metrics topic. Dates are
// "2006-01-02"; the PCA array is truncated or zero-padded to 32 downstream.
type metricMessage struct {
	Commodity   string    `json:"commodity"`
	Date        string    `json:"date"`
	Close       float64   `json:"close"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Volume      float64   `json:"volume"`
	EMA         float64   `json:"ema"`
	NewsPCA     []float64 `json:"news_pca"`
	PDSI        float64   `json:"pdsi"`
	SPI30D      float64   `json:"spi30d"`
	SPI90D      float64   `json:"spi90d"`
	Yield10Y    float64   `json:"yield_10y"`
	USDIndex    float64   `json:"usd_index"`
	LambdaPrice float64   `json:"lambda_price"`
	LambdaNews  float64   `json:"lambda_news"`
	NewsCount   float64   `json:"news_count"`
}

func (h *MetricsIngestHandler) Handle(ctx context.Context, b []byte) error {
	var m metricMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	day, err := time.ParseInLocation("2006-01-02", m.Date, time.UTC)
	if err != nil {
		h.metrics.RecordError("consumer_bad_date")
		return err
	}

	return h.pipe.Process(ctx, &models.DailyMetric{
		Date:        day,
		Commodity:   m.Commodity,
		Close:       m.Close,
		Open:        m.Open,
		High:        m.High,
		Low:         m.Low,
		Volume:      m.Volume,
		EMA:         m.EMA,
		NewsPCA:     m.NewsPCA,
		PDSI:        m.PDSI,
		SPI30D:      m.SPI30D,
		SPI90D:      m.SPI90D,
		Yield10Y:    m.Yield10Y,
		USDIndex:    m.USDIndex,
		LambdaPrice: m.LambdaPrice,
		LambdaNews:  m.LambdaNews,
		NewsCount:   m.NewsCount,
		IngestedAt:  time.Now().UTC(),
	})
}

var _ pkgkafka.MessageHandler = (*MetricsIngestHandler)(nil)
