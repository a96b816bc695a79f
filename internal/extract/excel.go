package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders sheets as tab-separated rows, streaming each sheet. Trailing empty
// cells and blank rows are dropped. Workbooks with several sheets get a "# name" line
// before each sheet so titles stay searchable.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var buf strings.Builder
	for _, sheet := range sheets {
		if len(sheets) > 1 {
			fmt.Fprintf(&buf, "# %s\n", sheet)
		}
		if err := writeSheet(&buf, f, sheet); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func writeSheet(buf *strings.Builder, f *excelize.File, sheet string) error {
	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		end := len(cols)
		for end > 0 && strings.TrimSpace(cols[end-1]) == "" {
			end--
		}
		if end == 0 {
			continue
		}
		buf.WriteString(strings.Join(cols[:end], "\t"))
		buf.WriteByte('\n')
	}
	return rows.Error()
}
