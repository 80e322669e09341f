package export

import (
	"fmt"
	"time"

	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// row is a flattened, format-agnostic record both the CSV and Excel
// writers render and the JSON writer marshals directly.
type row struct {
	UserID         string    `json:"user_id"`
	EventName      string    `json:"event_name"`
	StepType       string    `json:"step_type"`
	StepIdentifier string    `json:"step_identifier"`
	Timestamp      time.Time `json:"timestamp"`
	TimeSpentSeconds float64 `json:"time_spent_seconds"`
	Converted      bool      `json:"converted"`
}

func rowsFromJourneys(journeys []postgres.UserJourney, anonymize bool) []row {
	var out []row
	for _, j := range journeys {
		userID := j.AnonymousID
		if anonymize {
			userID = anonymizeID(userID)
		}
		for _, ev := range j.Events {
			out = append(out, row{
				UserID:           userID,
				EventName:        ev.EventName,
				StepType:         ev.StepType,
				StepIdentifier:   ev.StepIdentifier,
				Timestamp:        ev.Timestamp,
				TimeSpentSeconds: ev.TimeSpentSeconds,
				Converted:        j.Converted,
			})
		}
	}
	return out
}

func summaryHeader() []string {
	return []string{"step_order", "label", "total_users", "conversion_rate_from_start", "drop_off_rate", "severity"}
}

func detailedHeader() []string {
	return []string{"user_id", "event_name", "step_type", "step_identifier", "timestamp", "time_spent_seconds", "converted"}
}

func rowToRecord(r row) []string {
	return []string{
		r.UserID, r.EventName, r.StepType, r.StepIdentifier,
		r.Timestamp.Format(time.RFC3339), fmt.Sprintf("%.2f", r.TimeSpentSeconds), fmt.Sprintf("%t", r.Converted),
	}
}

func exportTypeHeader(t exportjob.Type) []string {
	if t == exportjob.TypeSummary {
		return summaryHeader()
	}
	return detailedHeader()
}
