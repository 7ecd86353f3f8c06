package outcome

import (
	"fmt"
	"regexp"
	"strings"
)

// titleCodePattern finds tokens like "WA1", "LAB 2" or "qz10" in titles.
var titleCodePattern = regexp.MustCompile(`(?i)[A-Z]{2,4}\s*\d+`)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeCode trims and uppercases a task code for comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ExtractTaskCode derives a short task code for an assessment.
//
// Sources in priority order:
//  1. a sub-assessment of the syllabus framework whose title or name contains
//     the assessment title (case-insensitive)
//  2. content_data "code"
//  3. content_data "abbreviation"
//  4. the first 2-4 letter + digits token in the title
//
// Returns "" when no source yields a code.
func ExtractTaskCode(a Assessment, framework map[string]any) string {
	if code := codeFromFramework(a.Title, framework); code != "" {
		return code
	}
	if code := stringField(a.ContentData, "code"); code != "" {
		return code
	}
	if code := stringField(a.ContentData, "abbreviation"); code != "" {
		return code
	}
	if m := titleCodePattern.FindString(a.Title); m != "" {
		return strings.ToUpper(whitespace.ReplaceAllString(m, ""))
	}
	return ""
}

func codeFromFramework(title string, framework map[string]any) string {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" || framework == nil {
		return ""
	}
	components, _ := framework["components"].([]any)
	for _, c := range components {
		component, ok := c.(map[string]any)
		if !ok {
			continue
		}
		tasks, _ := component["sub_assessments"].([]any)
		for _, t := range tasks {
			task, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if !containsFold(task, "title", title) && !containsFold(task, "name", title) {
				continue
			}
			if code := stringField(task, "code"); code != "" {
				return code
			}
		}
	}
	return ""
}

func containsFold(m map[string]any, key, lowerNeedle string) bool {
	v := stringField(m, key)
	return v != "" && strings.Contains(strings.ToLower(v), lowerNeedle)
}

// stringField reads a scalar JSON value as a trimmed string.
func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	default:
		return ""
	}
}
