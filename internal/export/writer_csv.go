package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/victoralfred/funnelengine/internal/analytics"
)

func writeCSVDetailed(rows []row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(detailedHeader()); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(rowToRecord(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func writeCSVSummary(metrics []analytics.StepMetric) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader()); err != nil {
		return nil, err
	}
	for _, m := range metrics {
		record := []string{
			strconv.Itoa(m.StepOrder), m.Label, strconv.FormatInt(m.TotalUsers, 10),
			strconv.FormatFloat(m.ConversionRateFromStart, 'f', 2, 64),
			strconv.FormatFloat(m.DropOffRate, 'f', 2, 64), m.Severity,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
