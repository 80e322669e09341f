package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
)

// persistLocally writes data under dir, named by export_id and format. No
// object-storage SDK appears anywhere in the example pack, so exports are
// written to local disk and served back by export_id like a download proxy.
func persistLocally(dir, exportID string, format exportjob.Format, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", exportID, extensionFor(format)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

func extensionFor(format exportjob.Format) string {
	switch format {
	case exportjob.FormatJSON:
		return "json"
	case exportjob.FormatExcel:
		return "xlsx"
	default:
		return "csv"
	}
}
