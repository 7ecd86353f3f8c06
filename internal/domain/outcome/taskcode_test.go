package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTaskCode(t *testing.T) {
	framework := map[string]any{
		"components": []any{
			map[string]any{
				"name": "Written",
				"sub_assessments": []any{
					map[string]any{"title": "Written Assignment on Sorting", "code": "WA1"},
					map[string]any{"name": "Final Project Defense", "code": "FP"},
				},
			},
		},
	}

	tests := []struct {
		name      string
		a         Assessment
		framework map[string]any
		want      string
	}{
		{
			name:      "framework title contains assessment title",
			a:         Assessment{Title: "assignment on sorting", ContentData: map[string]any{"code": "XX9"}},
			framework: framework,
			want:      "WA1",
		},
		{
			name:      "framework name match",
			a:         Assessment{Title: "Project Defense"},
			framework: framework,
			want:      "FP",
		},
		{
			name: "content code",
			a:    Assessment{Title: "Quiz about graphs", ContentData: map[string]any{"code": " QZ2 ", "abbreviation": "Q"}},
			want: "QZ2",
		},
		{
			name: "abbreviation",
			a:    Assessment{Title: "Lab", ContentData: map[string]any{"abbreviation": "LB3"}},
			want: "LB3",
		},
		{
			name: "title pattern",
			a:    Assessment{Title: "Midterm lab 2 - trees"},
			want: "LAB2",
		},
		{
			name: "title pattern case insensitive",
			a:    Assessment{Title: "wa10 essay"},
			want: "WA10",
		},
		{
			name: "none",
			a:    Assessment{Title: "Final examination"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTaskCode(tt.a, tt.framework))
		})
	}
}

func TestEdge_TaskMatching(t *testing.T) {
	open := Edge{}
	assert.True(t, open.AppliesToTask(""))
	assert.True(t, open.AppliesToTask("WA1"))
	assert.False(t, open.ListsTask("WA1"))

	listed := Edge{AssessmentTasks: []string{" wa1 ", "QZ2"}}
	assert.True(t, listed.AppliesToTask("WA1"))
	assert.True(t, listed.ListsTask("qz2"))
	assert.False(t, listed.AppliesToTask("LB1"))
	assert.False(t, listed.AppliesToTask(""))
}
