package migration

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
	"github.com/rflorenc/mailbox-move-workbench/internal/mover"
)

// DefaultLargeMailboxMB is the size above which a passing record is
// downgraded to a warning.
const DefaultLargeMailboxMB = 10000

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidAddress reports whether s looks like an email address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(strings.TrimSpace(s))
}

// Validator checks mailbox records against the mover's read path.
type Validator struct {
	mover       mover.Mover
	thresholdMB float64
}

// NewValidator creates a Validator. A non-positive threshold selects
// DefaultLargeMailboxMB.
func NewValidator(m mover.Mover, thresholdMB float64) *Validator {
	if thresholdMB <= 0 {
		thresholdMB = DefaultLargeMailboxMB
	}
	return &Validator{mover: m, thresholdMB: thresholdMB}
}

// Validate derives the outcome for one record. The only side effect is the
// mover lookup; a lookup error counts as "does not exist".
func (v *Validator) Validate(ctx context.Context, rec models.MailboxRecord) models.ValidationOutcome {
	out := models.ValidationOutcome{
		Record: rec,
		Issues: []string{},
	}

	if !ValidAddress(rec.SourceEmail) {
		out.Issues = append(out.Issues, "Invalid source email format")
	} else {
		info, err := v.mover.Lookup(ctx, strings.TrimSpace(rec.SourceEmail))
		if err == nil && info.Exists {
			out.SourceExists = true
			out.SourceSizeMB = info.SizeMB
		} else {
			out.Issues = append(out.Issues, "Source mailbox not found")
		}
	}
	if !ValidAddress(rec.TargetEmail) {
		out.Issues = append(out.Issues, "Invalid target email format")
	}

	switch {
	case len(out.Issues) > 0:
		out.Status = models.ValidationFailed
	case out.SourceSizeMB > v.thresholdMB:
		out.Status = models.ValidationWarning
		out.Issues = append(out.Issues, fmt.Sprintf("Large mailbox (%s MB) may take longer to migrate",
			humanize.Comma(int64(out.SourceSizeMB))))
	default:
		out.Status = models.ValidationPassed
	}
	return out
}

// ValidateAll validates records in order. The result has one entry per
// record at the same index.
func (v *Validator) ValidateAll(ctx context.Context, records []models.MailboxRecord) []models.ValidationOutcome {
	out := make([]models.ValidationOutcome, len(records))
	for i, rec := range records {
		out[i] = v.Validate(ctx, rec)
	}
	return out
}
