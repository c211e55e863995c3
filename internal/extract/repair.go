package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// trailingComma matches a comma left before a closing brace or bracket.
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// Repair removes trailing commas from candidate and parses the result.
// It fixes that one defect only; anything else is reported as an error.
func Repair(candidate string) (any, error) {
	fixed := trailingComma.ReplaceAllString(candidate, "$1")
	var v any
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, fmt.Errorf("repair failed: %w", err)
	}
	return v, nil
}
