package privacy

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DecodeTier tells which fallback produced a detection result
type DecodeTier int

const (
	// TierStrict means the whole reply was a JSON object
	TierStrict DecodeTier = iota
	// TierExtracted means a JSON object was cut out of surrounding prose
	TierExtracted
	// TierEmpty means nothing usable was found
	TierEmpty
)

func (t DecodeTier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierExtracted:
		return "extracted"
	default:
		return "empty"
	}
}

// DecodeDetection turns a free-form model reply into a DetectionResult.
// It tries a strict parse, then the first balanced object that is valid
// JSON, then gives up with an all-empty result. It never fails.
func DecodeDetection(reply string) (DetectionResult, DecodeTier) {
	trimmed := strings.TrimSpace(reply)

	if obj, ok := strictObject(trimmed); ok {
		return detectionFromJSON(obj), TierStrict
	}
	if obj, ok := extractObject(trimmed); ok {
		return detectionFromJSON(obj), TierExtracted
	}
	return NewDetectionResult(), TierEmpty
}

func strictObject(s string) (gjson.Result, bool) {
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	res := gjson.Parse(s)
	return res, res.IsObject()
}

// extractObject scans for balanced {...} candidates, honouring string
// literals and escapes, and returns the first one that parses.
func extractObject(s string) (gjson.Result, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		end := matchBrace(s, start)
		if end > start {
			if obj, ok := strictObject(s[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return gjson.Result{}, false
}

// matchBrace returns the index of the brace closing the one at open, or -1
func matchBrace(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// detectionFromJSON reads the category arrays; unknown keys are ignored.
// Strings are kept verbatim and bare numbers keep their literal text.
func detectionFromJSON(obj gjson.Result) DetectionResult {
	res := NewDetectionResult()
	obj.ForEach(func(key, value gjson.Result) bool {
		c, ok := ParseCategory(key.String())
		if !ok || !value.IsArray() {
			return true
		}
		value.ForEach(func(_, item gjson.Result) bool {
			switch item.Type {
			case gjson.String:
				res.Add(c, item.String())
			case gjson.Number:
				res.Add(c, item.Raw)
			}
			return true
		})
		return true
	})
	return res
}
