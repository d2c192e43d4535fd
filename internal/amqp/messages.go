package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
)

// ReportSavedMessage announces that a report session was persisted. It
// carries the summary only; consumers read records from storage.
type ReportSavedMessage struct {
	MessageID      string    `json:"message_id"`
	ReportName     string    `json:"report_name"`
	BaseCurrency   string    `json:"base_currency"`
	Records        int       `json:"records"`
	Total          string    `json:"total"`
	RatesAvailable bool      `json:"rates_available"`
	SavedAt        time.Time `json:"saved_at"`
}

// NewReportSavedMessage builds a message from a report summary.
func NewReportSavedMessage(s core.ReportSummary) *ReportSavedMessage {
	return &ReportSavedMessage{
		MessageID:      uuid.NewString(),
		ReportName:     s.ReportName,
		BaseCurrency:   s.BaseCurrency,
		Records:        s.Records,
		Total:          core.FormatAmount(s.Total),
		RatesAvailable: s.RatesAvailable,
		SavedAt:        time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportSavedMessageFromJSON creates a message from JSON bytes
func ReportSavedMessageFromJSON(data []byte) (*ReportSavedMessage, error) {
	var msg ReportSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
