package survey

import (
	"slices"
	"strings"

	"github.com/gather-app/gather/pkg/models"
)

// Answer payload bounds. Answers are arbitrary client JSON persisted
// verbatim, so every branch caps the size it accepts.
const (
	MaxTextAnswerLen     = 10000
	MaxDateTimeAnswerLen = 100
	MaxMatrixSelections  = 100
	MaxMatrixItemLen     = 200
	MaxMatrixRows        = 100
)

// IsEmpty reports whether a decoded JSON answer counts as absent: nil, a
// string that trims to nothing, an empty list, or an empty map.
func IsEmpty(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

// Validate checks one decoded JSON answer against a question type and its
// flags. It is pure: invalid input returns false, never an error.
//
// Emptiness is resolved first and identically for every type: an empty
// answer is acceptable exactly when the question is not required. A nil
// options slice means the question imposes no membership restriction
// (matrix-style option payloads never reach the validator as a list).
func Validate(qt models.QuestionType, answer any, options []string, required, allowOther bool) bool {
	if IsEmpty(answer) {
		return !required
	}

	switch qt {
	case models.QuestionTypeText:
		s, ok := answer.(string)
		return ok && len(s) <= MaxTextAnswerLen

	case models.QuestionTypeMultipleChoice:
		return validChoice(answer, options, allowOther)

	case models.QuestionTypeCheckbox:
		return validCheckbox(answer, options, allowOther)

	case models.QuestionTypeYesNo:
		switch v := answer.(type) {
		case bool:
			return true
		case string:
			return v == "yes" || v == "no"
		}
		return false

	case models.QuestionTypeDateTime:
		// loose format check only; the bound caps payload size rather than
		// enforcing a calendar format
		s, ok := answer.(string)
		return ok && strings.TrimSpace(s) != "" && len(s) <= MaxDateTimeAnswerLen

	case models.QuestionTypeMatrix:
		items, ok := answer.([]any)
		if !ok || len(items) > MaxMatrixSelections {
			return false
		}
		for _, it := range items {
			s, ok := it.(string)
			if !ok || strings.TrimSpace(s) == "" || len(s) > MaxMatrixItemLen {
				return false
			}
		}
		return true

	case models.QuestionTypeMatrixSingle:
		m, ok := answer.(map[string]any)
		if !ok || len(m) > MaxMatrixRows {
			return false
		}
		for k, raw := range m {
			v, ok := raw.(string)
			if !ok {
				return false
			}
			if strings.TrimSpace(k) == "" || len(k) > MaxMatrixItemLen {
				return false
			}
			if strings.TrimSpace(v) == "" || len(v) > MaxMatrixItemLen {
				return false
			}
		}
		return true
	}

	// unrecognized type
	return false
}

// validChoice accepts a bare option string or a {value, other_text} record.
// The literal "other" is an escape hatch gated by allowOther: as a bare
// string it needs no other_text, as a structured value it requires one.
func validChoice(answer any, options []string, allowOther bool) bool {
	if rec, ok := answer.(map[string]any); ok {
		raw, ok := rec["value"]
		if !ok {
			return false
		}
		if raw == "other" {
			if !allowOther {
				return false
			}
			return validOtherText(rec)
		}
		s, ok := raw.(string)
		if !ok {
			return false
		}
		return options == nil || slices.Contains(options, s)
	}

	s, ok := answer.(string)
	if !ok {
		return false
	}
	if s == "other" {
		return allowOther
	}
	return options == nil || slices.Contains(options, s)
}

// validCheckbox accepts a bare list of option strings or a
// {values, other_text} record. A structured selection of "other" requires
// other_text; the bare-list form has nowhere to carry one.
func validCheckbox(answer any, options []string, allowOther bool) bool {
	if rec, ok := answer.(map[string]any); ok {
		raw, ok := rec["values"]
		if !ok {
			return false
		}
		values, ok := raw.([]any)
		if !ok || len(values) == 0 {
			return false
		}
		if containsOther(values) {
			if !allowOther {
				return false
			}
			if !validOtherText(rec) {
				return false
			}
		}
		return itemsAllowed(values, options, allowOther)
	}

	items, ok := answer.([]any)
	if !ok || len(items) == 0 {
		return false
	}
	if containsOther(items) && !allowOther {
		return false
	}
	return itemsAllowed(items, options, allowOther)
}

func validOtherText(rec map[string]any) bool {
	s, _ := rec["other_text"].(string)
	return strings.TrimSpace(s) != "" && len(s) <= MaxTextAnswerLen
}

func containsOther(items []any) bool {
	for _, it := range items {
		if it == "other" {
			return true
		}
	}
	return false
}

func itemsAllowed(items []any, options []string, allowOther bool) bool {
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return false
		}
		if options == nil {
			continue
		}
		if slices.Contains(options, s) || (s == "other" && allowOther) {
			continue
		}
		return false
	}
	return true
}

// NormalizeAnswer applies the free-text normalization used before both
// validation and storage: a nil text answer becomes the empty string, and
// optional text that trims to nothing is stored empty.
func NormalizeAnswer(q *models.Question, answer any) any {
	if q.Type != models.QuestionTypeText {
		return answer
	}
	if answer == nil {
		return ""
	}
	if s, ok := answer.(string); ok && !q.Required && strings.TrimSpace(s) == "" {
		return ""
	}
	return answer
}
