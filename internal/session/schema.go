package session

import (
	"context"
	"fmt"
	"slices"
)

// FieldOption is one selectable feedback field.
type FieldOption struct {
	Value string `json:"value" koanf:"value" yaml:"value"`
	Label string `json:"label" koanf:"label" yaml:"label"`
}

// EnumOption is one entry of a fixed enumeration.
type EnumOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormStructure is everything a presentation layer needs to render the
// rejection form.
type FormStructure struct {
	Fields     []FieldOption `json:"fields"`
	Categories []EnumOption  `json:"categories"`
	Priorities []EnumOption  `json:"priorities"`
}

var categoryLabels = map[Category]string{
	CategoryUI:            "UI",
	CategoryLogic:         "Logic",
	CategoryData:          "Data",
	CategoryWorkflow:      "Workflow",
	CategoryPerformance:   "Performance",
	CategoryAccessibility: "Accessibility",
	CategoryOther:         "Other",
}

var priorityLabels = map[Priority]string{
	PriorityBlocker:    "Blocker",
	PriorityNiceToHave: "Nice to have",
}

// BuildFormStructure merges provider field options with the fixed enumerations.
// A nil provider yields an empty field list.
func BuildFormStructure(ctx context.Context, provider FieldOptionProvider) (FormStructure, error) {
	form := FormStructure{
		Fields:     []FieldOption{},
		Categories: make([]EnumOption, 0, len(Categories)),
		Priorities: make([]EnumOption, 0, len(Priorities)),
	}
	if provider != nil {
		fields, err := provider.FieldOptions(ctx)
		if err != nil {
			return FormStructure{}, fmt.Errorf("field options: %w", err)
		}
		form.Fields = slices.Clone(fields)
		if form.Fields == nil {
			form.Fields = []FieldOption{}
		}
	}
	for _, c := range Categories {
		form.Categories = append(form.Categories, EnumOption{Value: string(c), Label: categoryLabels[c]})
	}
	for _, p := range Priorities {
		form.Priorities = append(form.Priorities, EnumOption{Value: string(p), Label: priorityLabels[p]})
	}
	return form, nil
}
