package config

import (
	"fmt"
	"regexp"

	"github.com/perry-go/perry/internal/orm/crud"
	"github.com/perry-go/perry/internal/orm/validation"
)

// Rules builds the validation set of a model, or nil when it declares no
// validations
func Rules(mc ModelConfig) (*validation.Set, error) {
	if len(mc.Validations) == 0 {
		return nil, nil
	}

	set := validation.NewSet()
	for _, vc := range mc.Validations {
		rules, err := fieldRules(vc)
		if err != nil {
			return nil, fmt.Errorf("model %s field %s: %w", mc.Name, vc.Field, err)
		}
		set.Add(vc.Field, rules...)
	}
	return set, nil
}

func fieldRules(vc ValidationConfig) ([]validation.Rule, error) {
	var rules []validation.Rule
	if vc.Presence {
		rules = append(rules, validation.PresenceRule{})
	}
	if vc.Min != nil {
		rules = append(rules, validation.MinRule{Min: *vc.Min})
	}
	if vc.Max != nil {
		rules = append(rules, validation.MaxRule{Max: *vc.Max})
	}
	if vc.MinLength > 0 || vc.MaxLength > 0 {
		rules = append(rules, validation.LengthRule{Min: vc.MinLength, Max: vc.MaxLength})
	}
	if vc.Pattern != "" {
		re, err := regexp.Compile(vc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		rules = append(rules, validation.PatternRule{Pattern: re})
	}
	switch vc.Format {
	case "email":
		rules = append(rules, validation.EmailRule{})
	case "url":
		rules = append(rules, validation.URLRule{})
	}
	if len(vc.In) > 0 {
		rules = append(rules, validation.InclusionRule{In: vc.In})
	}
	return rules, nil
}

// Operations returns the persistence operations of the named model. Models
// with validations check them before every save.
func (e *Environment) Operations(name string) *crud.Operations {
	if set, ok := e.rules[name]; ok {
		return crud.NewOperations(crud.WithValidator(set))
	}
	return crud.NewOperations()
}

// Rules returns the validation set of the named model
func (e *Environment) Rules(name string) (*validation.Set, bool) {
	set, ok := e.rules[name]
	return set, ok
}
