package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

// RunCompletedMessage announces that a run has written its output. Consumers
// read the output from the sinks; the message only carries the summary.
type RunCompletedMessage struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Facts          int       `json:"facts"`
	Months         int       `json:"months"`
	Steps          int       `json:"steps"`
	DrilldownRows  int       `json:"drilldown_rows"`
	RecalcWarnings int       `json:"recalc_warnings"`
	RequestID      string    `json:"request_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewRunCompletedMessage builds the event from a run summary.
func NewRunCompletedMessage(s report.Summary, requestID string) *RunCompletedMessage {
	return &RunCompletedMessage{
		RunID:          s.Run.ID,
		StartedAt:      s.Run.StartedAt,
		FinishedAt:     s.FinishedAt,
		Facts:          s.Facts,
		Months:         s.Months,
		Steps:          s.Steps,
		DrilldownRows:  s.DrilldownRows,
		RecalcWarnings: s.RecalcWarnings,
		RequestID:      requestID,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RunCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RunCompletedMessageFromJSON(data []byte) (*RunCompletedMessage, error) {
	var msg RunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecomputeRequestMessage asks the worker for a fresh run. Empty fields fall
// back to the worker's configured defaults.
type RecomputeRequestMessage struct {
	RequestID string    `json:"request_id"`
	MonthA    string    `json:"month_a,omitempty"`
	MonthB    string    `json:"month_b,omitempty"`
	Dimension string    `json:"dimension,omitempty"`
	TopN      int       `json:"top_n,omitempty"`
	Metric    string    `json:"metric,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecomputeRequestMessage creates a request with a fresh id.
func NewRecomputeRequestMessage(monthA, monthB, dimension string) *RecomputeRequestMessage {
	return &RecomputeRequestMessage{
		RequestID: uuid.NewString(),
		MonthA:    monthA,
		MonthB:    monthB,
		Dimension: dimension,
		Timestamp: time.Now(),
	}
}

// Validate checks the optional fields that are set.
func (m *RecomputeRequestMessage) Validate() error {
	if m.MonthA != "" {
		if _, err := core.ParseMonth(m.MonthA); err != nil {
			return fmt.Errorf("month_a: %w", err)
		}
	}
	if m.MonthB != "" {
		if _, err := core.ParseMonth(m.MonthB); err != nil {
			return fmt.Errorf("month_b: %w", err)
		}
	}
	if m.Dimension != "" {
		if _, err := core.ParseDimension(m.Dimension); err != nil {
			return fmt.Errorf("dimension: %w", err)
		}
	}
	if m.TopN < 0 {
		return fmt.Errorf("top_n must not be negative, got %d", m.TopN)
	}
	if m.Metric != "" {
		if _, err := core.ParseDrilldownMetric(m.Metric); err != nil {
			return fmt.Errorf("metric: %w", err)
		}
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *RecomputeRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecomputeRequestMessageFromJSON(data []byte) (*RecomputeRequestMessage, error) {
	var msg RecomputeRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
