// Package ingest turns uploaded mailbox lists into records. Rows missing a
// required field are dropped, not rejected.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// ErrEmpty is returned for an upload without a header row.
var ErrEmpty = errors.New("empty file")

// Result is the outcome of an ingestion.
type Result struct {
	Records []models.MailboxRecord `json:"records"`
	Total   int                    `json:"total"`
	Dropped int                    `json:"dropped"`
}

var headerAliases = map[string]string{
	"sourceemail":   "source",
	"source":        "source",
	"sourceaddress": "source",
	"from":          "source",
	"targetemail":   "target",
	"target":        "target",
	"targetaddress": "target",
	"destination":   "target",
	"to":            "target",
	"displayname":   "name",
	"name":          "name",
	"fullname":      "name",
}

var policy = bluemonday.StrictPolicy()

// normalizeHeader lowercases and strips spaces, dashes and underscores.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// ParseCSV reads a header-driven CSV of mailbox records.
func ParseCSV(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := map[string]int{}
	for i, h := range header {
		if col, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, seen := idx[col]; !seen {
				idx[col] = i
			}
		}
	}
	for _, col := range []string{"source", "target", "name"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, columnLabel(col))
		}
	}

	field := func(row []string, col string) string {
		if i := idx[col]; i < len(row) {
			return row[i]
		}
		return ""
	}

	var records []models.MailboxRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if isBlank(row) {
			continue
		}
		records = append(records, models.MailboxRecord{
			SourceEmail: field(row, "source"),
			TargetEmail: field(row, "target"),
			DisplayName: field(row, "name"),
		})
	}
	return Filter(records), nil
}

// Filter cleans records and drops the incomplete ones. A display name made
// only of markup sanitizes to empty, so its record is dropped too.
func Filter(records []models.MailboxRecord) *Result {
	res := &Result{Records: make([]models.MailboxRecord, 0, len(records))}
	for _, rec := range records {
		rec = clean(rec)
		if !rec.Complete() {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	res.Total = len(res.Records)
	return res
}

func clean(rec models.MailboxRecord) models.MailboxRecord {
	return models.MailboxRecord{
		SourceEmail: strings.TrimSpace(rec.SourceEmail),
		TargetEmail: strings.TrimSpace(rec.TargetEmail),
		DisplayName: strings.Join(strings.Fields(sanitize(rec.DisplayName)), " "),
	}
}

// sanitize strips markup. The policy escapes text, so entities are decoded
// again before the name is stored.
func sanitize(s string) string {
	return html.UnescapeString(policy.Sanitize(s))
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func columnLabel(col string) string {
	switch col {
	case "source":
		return "SourceEmail"
	case "target":
		return "TargetEmail"
	}
	return "DisplayName"
}
