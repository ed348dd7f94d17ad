package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"calsync/internal/calendar/models"
)

// cleanDisplay trims a scraped value cell and maps the page's "no data"
// placeholders to nil so empty strings never reach the store.
func cleanDisplay(value string) *string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "--", "-", "n/a", "na":
		return nil
	}
	return &trimmed
}

var numberPattern = regexp.MustCompile(`^([+-]?\d*\.?\d+)([KMBT])?$`)

var suffixMultiplier = map[string]float64{
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
	"T": 1e12,
}

// parseNumber extracts a comparable float from a display value like "3.2%",
// "-0.5", "227K" or "1.2B". The second return reports whether the value was
// numeric at all; qualitative cells ("Pass", "Actual") are not.
func parseNumber(display string) (float64, bool) {
	s := strings.TrimSpace(display)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ToUpper(s)

	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if mult, ok := suffixMultiplier[m[2]]; ok {
		num *= mult
	}
	return num, true
}

// deriveObservedStatus compares observed against prior numerically. Higher
// is reported as better; callers that need direction-aware scoring do that
// downstream with release-specific rules.
func deriveObservedStatus(observed, prior *string) *models.ObservedStatus {
	if observed == nil || prior == nil {
		return nil
	}
	obs, ok := parseNumber(*observed)
	if !ok {
		return nil
	}
	pri, ok := parseNumber(*prior)
	if !ok {
		return nil
	}

	var status models.ObservedStatus
	switch {
	case obs > pri:
		status = models.ObservedBetter
	case obs < pri:
		status = models.ObservedWorse
	default:
		status = models.ObservedUnchanged
	}
	return &status
}

// importanceRule maps a keyword found in the raw impact label to a class.
// Rules are checked in order; the first match wins.
type importanceRule struct {
	keyword string
	class   models.Importance
}

var importanceRules = []importanceRule{
	{"high", models.ImportanceHigh},
	{"red", models.ImportanceHigh},
	{"medium", models.ImportanceMedium},
	{"med", models.ImportanceMedium},
	{"orange", models.ImportanceMedium},
	{"yellow", models.ImportanceMedium},
	{"low", models.ImportanceLow},
	{"grey", models.ImportanceLow},
	{"gray", models.ImportanceLow},
	{"holiday", models.ImportanceLow},
}

// ClassifyImportance maps a scraped impact label to a coarse class. Unknown
// is a valid terminal classification, never an error: calendars routinely
// ship rows with no usable impact marker.
func ClassifyImportance(label string) models.Importance {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return models.ImportanceUnknown
	}

	// Numeric severity markers (icon counts) come before keywords.
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n >= 3:
			return models.ImportanceHigh
		case n == 2:
			return models.ImportanceMedium
		case n == 1:
			return models.ImportanceLow
		}
		return models.ImportanceUnknown
	}

	for _, rule := range importanceRules {
		if strings.Contains(s, rule.keyword) {
			return rule.class
		}
	}

	// Bang-count markers ("!!!" = high) from legacy exports.
	switch strings.Count(s, "!") {
	case 0:
	case 1:
		return models.ImportanceLow
	case 2:
		return models.ImportanceMedium
	default:
		return models.ImportanceHigh
	}

	return models.ImportanceUnknown
}
