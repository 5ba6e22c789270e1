package serial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klokku/treasury/internal/apperr"
)

// Series describes how numbers of one document kind are rendered.
type Series struct {
	Code   string
	Prefix string
	Width  int
	// Standalone series may be drawn on their own. The others are only issued inside the
	// transaction that stores their document.
	Standalone bool
}

var (
	SeriesDV              = Series{Code: "DV", Prefix: "DV", Width: 4}
	SeriesORS             = Series{Code: "ORS", Prefix: "ORS", Width: 4}
	SeriesCheck           = Series{Code: "CHK", Prefix: "CHK", Width: 6}
	SeriesOfficialReceipt = Series{Code: "OR", Prefix: "OR", Width: 7, Standalone: true}
)

var knownSeries = []Series{SeriesDV, SeriesORS, SeriesCheck, SeriesOfficialReceipt}

func SeriesByCode(code string) (Series, bool) {
	for _, s := range knownSeries {
		if s.Code == code {
			return s, true
		}
	}
	return Series{}, false
}

// Scope is the key under which a sequence is gapless and unique.
type Scope struct {
	Series        Series
	FiscalYear    int
	FundClusterId int
	DocumentType  string
}

// Key renders the counter row key, e.g. "DV:2025" or "CHK:2025:3:check".
func (s Scope) Key() string {
	parts := []string{s.Series.Code, strconv.Itoa(s.FiscalYear)}
	if s.FundClusterId > 0 {
		parts = append(parts, strconv.Itoa(s.FundClusterId))
	}
	if s.DocumentType != "" {
		parts = append(parts, s.DocumentType)
	}
	return strings.Join(parts, ":")
}

func (s Scope) Validate() error {
	if s.Series.Code == "" {
		return apperr.Validation("series is required")
	}
	if s.FiscalYear < 1900 || s.FiscalYear > 9999 {
		return apperr.Validation("fiscal year %d is out of range", s.FiscalYear)
	}
	if s.FundClusterId < 0 {
		return apperr.Validation("fund cluster id must not be negative")
	}
	if strings.Contains(s.DocumentType, ":") {
		return apperr.Validation("document type must not contain ':'")
	}
	return nil
}

// Number is one issued value of a scope.
type Number struct {
	Scope Scope
	Value int64
}

// String formats PREFIX-YEAR[-CLUSTER]-VALUE, zero padded to the series width.
func (n Number) String() string {
	parts := []string{n.Scope.Series.Prefix, strconv.Itoa(n.Scope.FiscalYear)}
	if n.Scope.FundClusterId > 0 {
		parts = append(parts, fmt.Sprintf("%02d", n.Scope.FundClusterId))
	}
	parts = append(parts, fmt.Sprintf("%0*d", n.Scope.Series.Width, n.Value))
	return strings.Join(parts, "-")
}
