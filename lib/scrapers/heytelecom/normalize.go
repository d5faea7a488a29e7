package heytelecom

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"heytelecom-backend/lib/timezone"
)

// The portal renders every value as free text in whichever of its two
// locales the account uses. Each parser here is null-tolerant: input that
// does not match yields nil, never an error.

var dataAmountRegex = regexp.MustCompile(`(?i)([\d.]+)\s*(GB|MB|TB)`)

// parseDataAmount converts "2.25 GB", "500 MB" or "1 TB" into GB,
// rounded to two decimals.
func parseDataAmount(text string) *float64 {
	match := dataAmountRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(match[2]) {
	case "MB":
		value = value / 1024
	case "TB":
		value = value * 1024
	}
	value = math.Round(value*100) / 100
	return &value
}

var priceRegex = regexp.MustCompile(`([\d.]+)\s*€`)

// parsePrice reads "5 €/maand" style amounts, the currency is always euro.
func parsePrice(text string) *float64 {
	match := priceRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &value
}

var dottedDateRegex = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
var slashedDateRegex = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

// parseDate converts "04.04.2025" or "20/10/2025" into "2025-04-04".
// The dotted format is tried first.
func parseDate(text string) string {
	match := dottedDateRegex.FindStringSubmatch(text)
	if match == nil {
		match = slashedDateRegex.FindStringSubmatch(text)
	}
	if match == nil {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", match[3], match[2], match[1])
}

var periodRegex = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s*tot\s*(\d{2}/\d{2}/\d{4})`)

// parsePeriod reads "Van 11/10/2025 tot 11/11/2025". Both bounds are
// required, otherwise nothing is returned.
func parsePeriod(text string) *UsagePeriod {
	match := periodRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	start := parseDate(match[1])
	end := parseDate(match[2])
	if start == "" || end == "" {
		return nil
	}
	return &UsagePeriod{Start: start, End: end}
}

var minutesRegex = regexp.MustCompile(`(?i)([\d.]+)\s*min`)

func parseMinutes(text string) *float64 {
	match := minutesRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &value
}

var smsCountRegex = regexp.MustCompile(`(?i)([\d.]+)\s*sms`)

func parseSmsCount(text string) *int {
	match := smsCountRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	count := int(value)
	return &count
}

var lastUpdateRegex = regexp.MustCompile(`(\d{2})/(\d{2})\s*(\d{2}:\d{2})`)

// parseLastUpdate reads "Laatste update : 03/11 17:54". The portal omits
// the year, so the current Brussels year is assumed; around new year a
// December timestamp read in January comes out one year off.
func parseLastUpdate(text string) string {
	match := lastUpdateRegex.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	day, month, clock := match[1], match[2], match[3]
	return fmt.Sprintf("%04d-%s-%sT%s:00", timezone.Now().Year(), month, day, clock)
}

// isUnlimited reports whether a limit text means "no limit", in either
// portal locale.
func isUnlimited(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "onbeperkt") || strings.Contains(lower, "unlimited")
}
