package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"Person", "Persn", 1},
		{"héllo", "hello", 1},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			result := LevenshteinDistance(tt.s1, tt.s2)
			if result != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, result, tt.expected)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"crm.Person", "crm.Team", "crm.Pet", "billing.Invoice"}

	tests := []struct {
		name     string
		target   string
		opts     *FuzzyMatchOptions
		expected []string
	}{
		{"base name typo", "Persn", &FuzzyMatchOptions{MaxDistance: 1}, []string{"crm.Person"}},
		{"qualified typo", "crm.Persn", nil, []string{"crm.Person", "crm.Pet"}},
		{"case insensitive", "team", nil, []string{"crm.Team", "crm.Pet"}},
		{"case sensitive", "TEAM", &FuzzyMatchOptions{CaseSensitive: true, MaxDistance: 1}, []string{}},
		{"limited suggestions", "Pet", &FuzzyMatchOptions{MaxSuggestions: 1}, []string{"crm.Pet"}},
		{"nothing close", "Warehouse", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindSimilar(tt.target, candidates, tt.opts)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("FindSimilar(%q) = %v; want %v", tt.target, result, tt.expected)
			}
		})
	}
}

func TestFindBestMatch(t *testing.T) {
	candidates := []string{"crm.Person", "crm.Team"}

	if got := FindBestMatch("Teem", candidates, nil); got != "crm.Team" {
		t.Errorf("expected crm.Team, got %q", got)
	}
	if got := FindBestMatch("Warehouse", candidates, nil); got != "" {
		t.Errorf("expected no match, got %q", got)
	}
}

func TestFindSimilarEmptyCandidates(t *testing.T) {
	if result := FindSimilar("Person", nil, nil); len(result) != 0 {
		t.Errorf("expected no suggestions, got %v", result)
	}
}
