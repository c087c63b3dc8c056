package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reISODate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reCompactDate = regexp.MustCompile(`^\d{8}$`)
	reSlashDate   = regexp.MustCompile(`^(\d{4})[/.](\d{1,2})[/.](\d{1,2})$`)
	reKanjiDate   = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)
	reShortDate   = regexp.MustCompile(`^(\d{2})[./](\d{2})[./](\d{2})$`)

	reSeparators = regexp.MustCompile(`[,\s\x{00A0}]`)
	reKeyJoiners = regexp.MustCompile(`[\s_\-]+`)
	reKeyPunct   = regexp.MustCompile("[（）()［］\\[\\]【】<>「」『』\"'`]")
)

// Number converts a raw cell value to a float. Thousands separators and a
// currency glyph are stripped; anything unparseable yields 0 so extraction
// never fails on a malformed numeric cell.
func Number(raw string) float64 {
	cleaned := reSeparators.ReplaceAllString(raw, "")
	cleaned = strings.TrimSuffix(cleaned, "円")
	cleaned = strings.TrimPrefix(cleaned, "¥")
	cleaned = strings.TrimPrefix(cleaned, "￥")
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// Date converts a raw cell value to a zero-padded ISO date (YYYY-MM-DD).
// Accepted forms, in priority order: already-ISO, 8-digit compact,
// slash/dot delimited, Japanese long form, and 2-digit-year dot/slash form
// (assumed 20YY). Unrecognized input yields "" meaning "no date".
func Date(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if m := reISODate.FindStringSubmatch(trimmed); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	if reCompactDate.MatchString(trimmed) {
		return trimmed[0:4] + "-" + trimmed[4:6] + "-" + trimmed[6:8]
	}
	if m := reSlashDate.FindStringSubmatch(trimmed); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	if m := reKanjiDate.FindStringSubmatch(trimmed); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	if m := reShortDate.FindStringSubmatch(trimmed); m != nil {
		year, _ := strconv.Atoi(m[1])
		return isoDate(strconv.Itoa(year+2000), m[2], m[3])
	}
	return ""
}

func isoDate(y, m, d string) string {
	if len(m) == 1 {
		m = "0" + m
	}
	if len(d) == 1 {
		d = "0" + d
	}
	return y + "-" + m + "-" + d
}

// Key normalizes a folder, file or supplier name for comparison: lowercase,
// joiner runs removed, full-width Latin letters and digits folded to
// half-width, bracket and quote punctuation stripped.
func Key(raw string) string {
	s := strings.ToLower(raw)
	s = reKeyJoiners.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if (r >= 'Ａ' && r <= 'Ｚ') || (r >= 'ａ' && r <= 'ｚ') || (r >= '０' && r <= '９') {
			return r - 0xFEE0
		}
		return r
	}, s)
	s = strings.ToLower(s)
	return reKeyPunct.ReplaceAllString(s, "")
}

// ColumnToIndex converts a spreadsheet column label (A, B, ... AA, ...) to a
// zero-based index.
func ColumnToIndex(column string) (int, error) {
	label := strings.ToUpper(strings.TrimSpace(column))
	if label == "" {
		return 0, fmt.Errorf("empty column label")
	}
	result := 0
	for _, r := range label {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column label: %s", column)
		}
		result = result*26 + int(r-'A'+1)
	}
	return result - 1, nil
}

// IndexToColumn is the inverse of ColumnToIndex.
func IndexToColumn(index int) string {
	result := ""
	index++
	for index > 0 {
		index--
		result = string(rune('A'+index%26)) + result
		index /= 26
	}
	return result
}
