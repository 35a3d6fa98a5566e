package report

import (
	"bytes"
	"encoding/csv"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

func renderDelimited(s *models.MigrationSession) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, r := range rowsOf(s) {
		if err := w.Write(r.fields()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
