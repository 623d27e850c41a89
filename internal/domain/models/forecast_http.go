package models

// Requests and responses for the forecast HTTP endpoints. Defined in domain for
// consistency and reuse.

type SimulateRequest struct {
	Commodity   string             `json:"commodity" default:"corn" validate:"required,alphanum"`
	HorizonDays int                `json:"horizon_days" default:"60" validate:"gte=1,lte=180"`
	Overrides   map[string]float64 `json:"overrides"`
}

type RunForecastRequest struct {
	Commodity string `param:"commodity" json:"commodity" validate:"required,alphanum"`
}

type MetricsHistoryRequest struct {
	Commodity string `param:"commodity" json:"commodity" validate:"required,alphanum"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Limit     int    `query:"limit" json:"limit" default:"365" validate:"gte=1,lte=5000"`
}

type ForecastRunsRequest struct {
	Commodity string `param:"commodity" json:"commodity" validate:"required,alphanum"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type RunStatusRequest struct {
	RunID string `param:"id" json:"id" validate:"required,uuid4"`
}

type SimulationDayResponse struct {
	Date           string  `json:"date"`
	BaselinePrice  float64 `json:"baseline_price"`
	SimulatedPrice float64 `json:"simulated_price"`
	Delta          float64 `json:"delta"`
	DeltaPercent   float64 `json:"delta_percent"`
}

type SimulationSummaryResponse struct {
	TotalDays       int     `json:"total_days"`
	AvgDelta        float64 `json:"avg_delta"`
	MaxDelta        float64 `json:"max_delta"`
	MinDelta        float64 `json:"min_delta"`
	AvgDeltaPercent float64 `json:"avg_delta_percent"`
}

type FeatureImpactResponse struct {
	Feature       string  `json:"feature"`
	CurrentValue  float64 `json:"current_value"`
	OverrideValue float64 `json:"override_value"`
	Contribution  float64 `json:"contribution"`
}

type SimulationResponse struct {
	RunID       string                    `json:"run_id"`
	Commodity   string                    `json:"commodity"`
	BaseDate    string                    `json:"base_date"`
	HorizonDays int                       `json:"horizon_days"`
	Results     []SimulationDayResponse   `json:"results"`
	Summary     SimulationSummaryResponse `json:"summary"`
	Impacts     []FeatureImpactResponse   `json:"feature_impacts"`
}

type ForecastStepResponse struct {
	TargetDate string  `json:"target_date"`
	Price      float64 `json:"price_pred"`
	Lower      float64 `json:"conf_lower"`
	Upper      float64 `json:"conf_upper"`
}

type ForecastResponse struct {
	RunID     string                 `json:"run_id"`
	Commodity string                 `json:"commodity"`
	BaseDate  string                 `json:"base_date"`
	Kind      string                 `json:"kind,omitempty"`
	Steps     []ForecastStepResponse `json:"predictions"`
}

// MetricDayResponse is one stored metric day as served by the history
// endpoint. The news embedding stays out of the payload: it is a model
// input, not a chartable series.
type MetricDayResponse struct {
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Volume      float64 `json:"volume"`
	EMA         float64 `json:"ema"`
	PDSI        float64 `json:"pdsi"`
	SPI30D      float64 `json:"spi30d"`
	SPI90D      float64 `json:"spi90d"`
	Yield10Y    float64 `json:"yield_10y"`
	USDIndex    float64 `json:"usd_index"`
	LambdaPrice float64 `json:"lambda_price"`
	LambdaNews  float64 `json:"lambda_news"`
	NewsCount   float64 `json:"news_count"`
}

// SimulationRunStatus reports an async simulation run.
type SimulationRunStatus struct {
	RunID  string              `json:"run_id"`
	Status string              `json:"status"` // "pending" | "running" | "done" | "failed"
	Error  string              `json:"error,omitempty"`
	Result *SimulationResponse `json:"result,omitempty"`
}

// SimStreamFrame is one WebSocket message on the simulation stream:
// per-cycle progress while the run advances, then a final result or error.
type SimStreamFrame struct {
	Type   string              `json:"type"` // "progress" | "result" | "error"
	Cycle  int                 `json:"cycle,omitempty"`
	Total  int                 `json:"total,omitempty"`
	Error  string              `json:"error,omitempty"`
	Result *SimulationResponse `json:"result,omitempty"`
}
