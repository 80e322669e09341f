package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

func TestAnonymizeIDIsStableAndHashed(t *testing.T) {
	a := anonymizeID("anon_123")
	b := anonymizeID("anon_123")
	assert.Equal(t, a, b)
	assert.NotEqual(t, "anon_123", a)
	assert.Len(t, a, 16)
}

func TestAnonymizeIDEmpty(t *testing.T) {
	assert.Equal(t, "", anonymizeID(""))
}

func TestRowsFromJourneysAnonymizes(t *testing.T) {
	journeys := []postgres.UserJourney{
		{
			AnonymousID: "anon_1",
			Converted:   true,
			Events: []postgres.UserJourneyEvent{
				{EventName: "view", Timestamp: time.Now(), StepType: "page", StepIdentifier: "/home"},
			},
		},
	}

	plain := rowsFromJourneys(journeys, false)
	require.Len(t, plain, 1)
	assert.Equal(t, "anon_1", plain[0].UserID)

	anonymized := rowsFromJourneys(journeys, true)
	require.Len(t, anonymized, 1)
	assert.NotEqual(t, "anon_1", anonymized[0].UserID)
	assert.True(t, anonymized[0].Converted)
}

func TestWriteCSVDetailedProducesValidCSV(t *testing.T) {
	rows := []row{{UserID: "u1", EventName: "purchase", Timestamp: time.Now(), Converted: true}}
	data, err := writeCSVDetailed(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2) // header + 1 row
	assert.Equal(t, detailedHeader(), records[0])
	assert.Equal(t, "u1", records[1][0])
}

func TestWriteJSONExportIncludesFunnelID(t *testing.T) {
	data, err := writeJSONExport(42, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"funnel_id": 42`)
}
