package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"trendai/internal/core"

	"github.com/google/uuid"
)

// RefreshMessage asks the worker to recompute a trend snapshot.
// An empty Dimension means every trend dimension.
type RefreshMessage struct {
	ID          string         `json:"id"`
	Dimension   core.Dimension `json:"dimension,omitempty"`
	Year        int            `json:"year"`
	Month       int            `json:"month"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewRefreshMessage(dim core.Dimension, p core.Period) *RefreshMessage {
	return &RefreshMessage{
		ID:          uuid.NewString(),
		Dimension:   dim,
		Year:        p.Year,
		Month:       p.Month,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *RefreshMessage) Period() core.Period {
	return core.Period{Year: m.Year, Month: m.Month}
}

// Dimensions expands the message into the dimensions to recompute.
func (m *RefreshMessage) Dimensions() []core.Dimension {
	if m.Dimension == "" {
		return append([]core.Dimension(nil), core.TrendDimensions...)
	}
	return []core.Dimension{m.Dimension}
}

func (m *RefreshMessage) Validate() error {
	if m.Year < 1 {
		return fmt.Errorf("%w: %d", core.ErrInvalidYear, m.Year)
	}
	if m.Month < 1 || m.Month > 12 {
		return fmt.Errorf("%w: %d", core.ErrInvalidMonth, m.Month)
	}
	if m.Dimension != "" {
		if _, err := core.ParseDimension(string(m.Dimension)); err != nil {
			return err
		}
	}
	return nil
}

func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refresh message: %w", err)
	}
	return &msg, nil
}
