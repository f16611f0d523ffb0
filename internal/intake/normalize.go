package intake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tokokita/stock-intake/internal/extraction"
)

// NormalizeItems converts raw extracted line items into typed candidate
// items. It never drops a row: a field that fails to parse leaves the item in
// the batch with validation.Valid=false and the raw text preserved in the
// field error, so the operator can see and fix it. IDs are the 0-based input
// positions. Duplicate names are kept as separate rows; merging is an
// operator action.
func NormalizeItems(raw []extraction.RawLineItem) []Item {
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		items = append(items, normalizeItem(i, r))
	}
	return items
}

func normalizeItem(id int, raw extraction.RawLineItem) Item {
	item := Item{
		ID:     id,
		Name:   strings.TrimSpace(raw.Name),
		Origin: OriginExtracted,
	}

	parseErrs := make(map[string]string)

	quantity, err := ParseDecimal(raw.Quantity)
	if err != nil {
		parseErrs["quantity"] = fmt.Sprintf("cannot parse quantity %q", raw.Quantity)
	} else {
		item.Quantity = quantity
	}

	unitPrice, err := ParseDecimal(raw.UnitPrice)
	if err != nil {
		parseErrs["unit_price"] = fmt.Sprintf("cannot parse unit price %q", raw.UnitPrice)
	} else {
		item.UnitPrice = unitPrice
	}

	item.Validation = validateItem(item.Name, item.Quantity, item.UnitPrice)

	// Parse errors take precedence over the range message for the same field
	if len(parseErrs) > 0 {
		if item.Validation.Errors == nil {
			item.Validation.Errors = make(map[string]string)
		}
		for field, msg := range parseErrs {
			item.Validation.Errors[field] = msg
		}
		item.Validation.Valid = false
	}

	return item
}

// ParseDecimal parses a number the way it is printed on receipts, accepting
// thousands separators and either comma or point as the decimal mark:
//
//	"2"        -> 2
//	"65.000"   -> 65000 (point as thousands separator)
//	"12,50"    -> 12.5
//	"1.234,56" -> 1234.56
//	"1,234.56" -> 1234.56
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	// Spaces inside a number are thousands separators
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastPoint := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastPoint >= 0:
		// Both present: the rightmost is the decimal mark, the other is a
		// thousands separator.
		if lastComma > lastPoint {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastPoint >= 0:
		s = normalizeSingleSeparator(s, ".")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if negative {
		value = -value
	}
	return value, nil
}

// normalizeSingleSeparator resolves a number containing only one kind of
// separator. Multiple occurrences are always thousands separators. A single
// occurrence followed by exactly three digits is read as a thousands
// separator ("65.000" -> 65000) unless the integer part is a bare zero
// ("0.500" -> 0.5); anything else is a decimal mark.
func normalizeSingleSeparator(s, sep string) string {
	first := strings.Index(s, sep)
	last := strings.LastIndex(s, sep)
	if first != last {
		return strings.ReplaceAll(s, sep, "")
	}
	intPart := s[:last]
	fracPart := s[last+1:]
	if len(fracPart) == 3 && intPart != "0" && intPart != "" {
		return intPart + fracPart
	}
	if sep == "," {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}
