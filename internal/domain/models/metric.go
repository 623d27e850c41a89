package models

import "time"

// DailyMetric is one stored day of market and exogenous data for a commodity.
// NewsPCA carries the 32 news-embedding components in order.
type DailyMetric struct {
	Date        time.Time
	Commodity   string
	Close       float64
	Open        float64
	High        float64
	Low         float64
	Volume      float64
	EMA         float64
	PDSI        float64 // Palmer drought severity index
	SPI30D      float64
	SPI90D      float64
	Yield10Y    float64
	USDIndex    float64
	LambdaPrice float64
	LambdaNews  float64
	NewsCount   float64
	NewsPCA     []float64
	IngestedAt  time.Time
}
