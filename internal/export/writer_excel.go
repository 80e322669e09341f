package export

import (
	"bytes"
	"strconv"

	"github.com/tealeg/xlsx"

	"github.com/victoralfred/funnelengine/internal/analytics"
)

func writeExcelDetailed(rows []row) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("events")
	if err != nil {
		return nil, err
	}
	addSheetHeader(sheet, detailedHeader())
	for _, r := range rows {
		addSheetRow(sheet, rowToRecord(r))
	}
	return renderExcel(file)
}

func writeExcelSummary(metrics []analytics.StepMetric) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("summary")
	if err != nil {
		return nil, err
	}
	addSheetHeader(sheet, summaryHeader())
	for _, m := range metrics {
		addSheetRow(sheet, []string{
			strconv.Itoa(m.StepOrder), m.Label, strconv.FormatInt(m.TotalUsers, 10),
			strconv.FormatFloat(m.ConversionRateFromStart, 'f', 2, 64),
			strconv.FormatFloat(m.DropOffRate, 'f', 2, 64), m.Severity,
		})
	}
	return renderExcel(file)
}

func addSheetHeader(sheet *xlsx.Sheet, cols []string) {
	addSheetRow(sheet, cols)
}

func addSheetRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		cell := r.AddCell()
		cell.Value = v
	}
}

func renderExcel(file *xlsx.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
