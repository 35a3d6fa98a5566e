// Package report renders a migration session as a downloadable file.
// Output depends only on the session and the supplied generation time.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

// ErrUnknownFormat is returned for a format name that is not supported.
var ErrUnknownFormat = errors.New("unknown report format")

// Format is a report output format.
type Format string

const (
	Delimited Format = "delimited"
	Document  Format = "document"
	Markdown  Format = "markdown"
)

const notAvailable = "N/A"

// ParseFormat resolves a format name or its file extension alias.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "delimited", "csv":
		return Delimited, nil
	case "document", "html":
		return Document, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case Delimited:
		return "csv"
	case Document:
		return "html"
	case Markdown:
		return "md"
	}
	return "txt"
}

// ContentType returns the MIME type for a format.
func ContentType(f Format) string {
	switch f {
	case Delimited:
		return "text/csv; charset=utf-8"
	case Document:
		return "text/html; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}

// Filename returns the download name stamped with the date of now.
func Filename(f Format, now time.Time) string {
	return fmt.Sprintf("mailbox-migration-report-%s.%s", now.Format(time.DateOnly), f.Extension())
}

// Render produces the report for s in format f.
func Render(s *models.MigrationSession, f Format, generatedAt time.Time) ([]byte, error) {
	switch f {
	case Delimited:
		return renderDelimited(s)
	case Document:
		return renderDocument(s, generatedAt)
	case Markdown:
		return renderMarkdown(s, generatedAt)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

var columns = []string{
	"Display Name", "Source", "Target", "Status", "Start Time", "End Time",
	"Duration", "Items Moved", "Data Moved", "Error Message",
}

// row is one outcome with every column already rendered as text.
type row struct {
	DisplayName string
	Source      string
	Target      string
	Status      string
	StatusClass string
	Start       string
	End         string
	Duration    string
	Items       string
	Data        string
	Error       string
}

func (r row) fields() []string {
	return []string{r.DisplayName, r.Source, r.Target, r.Status, r.Start, r.End,
		r.Duration, r.Items, r.Data, r.Error}
}

func rowsOf(s *models.MigrationSession) []row {
	rows := make([]row, len(s.Outcomes))
	for i, o := range s.Outcomes {
		r := row{
			DisplayName: o.Record.DisplayName,
			Source:      o.Record.SourceEmail,
			Target:      o.Record.TargetEmail,
			Status:      o.Status.Label(),
			StatusClass: string(o.Status),
			Start:       formatTime(o.StartTime),
			End:         notAvailable,
			Duration:    orNA(o.Duration),
			Items:       notAvailable,
			Data:        orNA(o.DataMoved),
			Error:       o.Error,
		}
		if o.EndTime != nil {
			r.End = formatTime(*o.EndTime)
		}
		if o.Status == models.OutcomeCompleted {
			r.Items = strconv.Itoa(o.ItemsMoved)
		}
		rows[i] = r
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.UTC().Format(time.DateTime)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
