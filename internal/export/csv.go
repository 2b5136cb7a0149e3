// Package export renders collected leads into downloadable artifacts.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/appscout/appscout/internal/scout"
)

// csvHeader is the column layout consumers of the export file rely on.
var csvHeader = []string{
	"App Name", "App ID", "Email", "Rating", "Reviews", "Installs", "Country", "Term", "Date",
}

// WriteCSV renders leads as a CSV document with a fixed header row.
func WriteCSV(w io.Writer, leads []scout.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, lead := range leads {
		row := []string{
			lead.AppName,
			lead.AppID,
			lead.Email,
			strconv.FormatFloat(lead.Rating, 'f', 1, 64),
			strconv.Itoa(lead.Reviews),
			lead.Installs,
			lead.Region,
			lead.Term,
			lead.FoundAt.UTC().Format("2006-01-02"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FileName builds the export file name for a seed term, safe for object
// stores and filesystems alike.
func FileName(seed string, now time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(seed))
	if slug == "" {
		slug = "all"
	}
	return fmt.Sprintf("Leads_%s_%s.csv", slug, now.UTC().Format("2006-01-02"))
}
