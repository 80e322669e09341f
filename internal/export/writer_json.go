package export

import (
	"encoding/json"
	"time"

	"github.com/victoralfred/funnelengine/internal/analytics"
)

// writeJSONExport adapts FunnelService.exportAsJSON's envelope to real
// query results: {funnel_id, exported_at}, plus "summary" when a summary
// is given and "rows" when detail rows are given.
func writeJSONExport(funnelID int64, detailRows []row, summary *analytics.ConversionAnalysis, exportedAt time.Time) ([]byte, error) {
	doc := map[string]any{
		"funnel_id":   funnelID,
		"exported_at": exportedAt,
	}
	if summary != nil {
		doc["summary"] = summary
	}
	if detailRows != nil {
		doc["rows"] = detailRows
	}
	return json.MarshalIndent(doc, "", "  ")
}
