package intercept

import "sync"

// Snapshot holds aggregated decisioning rates for dashboards and alerting.
type Snapshot struct {
	TotalCalls          int     `json:"total_calls"`
	AllowRate           float64 `json:"allow_rate"`
	ReviewRate          float64 `json:"review_rate"`
	BlockRate           float64 `json:"block_rate"`
	FallbackRate        float64 `json:"fallback_rate"`
	HighRiskRate        float64 `json:"high_risk_rate"`
	TokenFailureRate    float64 `json:"token_failure_rate"`
	ShadowScheduledRate float64 `json:"shadow_scheduled_rate"`
	ExportFailureRate   float64 `json:"export_failure_rate"`
	ToolErrorRate       float64 `json:"tool_error_rate"`
	DriftDetectionRate  float64 `json:"drift_detection_rate"`
	LowGroundingRate    float64 `json:"low_grounding_rate"`
}

// AlertThresholds configures alert generation over a Snapshot.
type AlertThresholds struct {
	MaxBlockRate         float64
	MaxReviewRate        float64
	MaxFallbackRate      float64
	MaxTokenFailureRate  float64
	MaxExportFailureRate float64
	MaxToolErrorRate     float64
	MaxDriftRate         float64
	MaxLowGroundingRate  float64
}

// DefaultAlertThresholds returns the default alert policy.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxBlockRate:         0.10,
		MaxReviewRate:        0.25,
		MaxFallbackRate:      0.10,
		MaxTokenFailureRate:  0.01,
		MaxExportFailureRate: 0.05,
		MaxToolErrorRate:     0.05,
		MaxDriftRate:         0.05,
		MaxLowGroundingRate:  0.20,
	}
}

// Metrics accumulates per-interceptor counters. All methods are safe for
// concurrent use.
type Metrics struct {
	mu sync.Mutex

	totalCalls      int
	allowed         int
	reviewed        int
	blocked         int
	fallbacks       int
	highRisk        int
	tokenFailures   int
	shadowScheduled int
	exportFailures  int
	toolErrors      int
	driftDetections int
	lowGrounding    int
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) record(fn func(*Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func ratio(numerator, denominator int) float64 {
	if denominator <= 0 {
		return 0.0
	}
	return float64(numerator) / float64(denominator)
}

// Snapshot returns the current aggregated rates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.totalCalls
	return Snapshot{
		TotalCalls:          total,
		AllowRate:           ratio(m.allowed, total),
		ReviewRate:          ratio(m.reviewed, total),
		BlockRate:           ratio(m.blocked, total),
		FallbackRate:        ratio(m.fallbacks, total),
		HighRiskRate:        ratio(m.highRisk, total),
		TokenFailureRate:    ratio(m.tokenFailures, total),
		ShadowScheduledRate: ratio(m.shadowScheduled, total),
		ExportFailureRate:   ratio(m.exportFailures, total),
		ToolErrorRate:       ratio(m.toolErrors, total),
		DriftDetectionRate:  ratio(m.driftDetections, total),
		LowGroundingRate:    ratio(m.lowGrounding, total),
	}
}

// ActiveAlerts evaluates the snapshot against the threshold policy and
// returns the names of breached thresholds.
func (m *Metrics) ActiveAlerts(thresholds AlertThresholds) []string {
	snap := m.Snapshot()
	var alerts []string
	if snap.BlockRate > thresholds.MaxBlockRate {
		alerts = append(alerts, "block_rate_above_threshold")
	}
	if snap.ReviewRate > thresholds.MaxReviewRate {
		alerts = append(alerts, "review_rate_above_threshold")
	}
	if snap.FallbackRate > thresholds.MaxFallbackRate {
		alerts = append(alerts, "fallback_rate_above_threshold")
	}
	if snap.TokenFailureRate > thresholds.MaxTokenFailureRate {
		alerts = append(alerts, "token_failure_rate_above_threshold")
	}
	if snap.ExportFailureRate > thresholds.MaxExportFailureRate {
		alerts = append(alerts, "export_failure_rate_above_threshold")
	}
	if snap.ToolErrorRate > thresholds.MaxToolErrorRate {
		alerts = append(alerts, "tool_error_rate_above_threshold")
	}
	if snap.DriftDetectionRate > thresholds.MaxDriftRate {
		alerts = append(alerts, "drift_rate_above_threshold")
	}
	if snap.LowGroundingRate > thresholds.MaxLowGroundingRate {
		alerts = append(alerts, "low_grounding_rate_above_threshold")
	}
	return alerts
}
