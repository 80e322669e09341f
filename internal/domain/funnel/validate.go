package funnel

import (
	"fmt"
	"strings"

	"github.com/victoralfred/funnelengine/internal/apperr"
)

// ValidateDefinition enforces §3/§4.1's step-ordering and content invariants
// before a FunnelStore create/update persists anything.
func ValidateDefinition(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return apperr.InvalidSchema("funnel name is required", nil)
	}
	if len(def.Steps) == 0 {
		return apperr.InvalidSchema("funnel must have at least one step", nil)
	}

	seenOrder := make(map[int]bool, len(def.Steps))
	hasStart, hasConversion := false, false
	for _, s := range def.Steps {
		if seenOrder[s.OrderIndex] {
			return apperr.InvalidSchema(fmt.Sprintf("duplicate order_index %d", s.OrderIndex), nil)
		}
		seenOrder[s.OrderIndex] = true

		if len(s.Matches) == 0 {
			return apperr.InvalidSchema(fmt.Sprintf("step %d has no match rules", s.OrderIndex), nil)
		}
		for _, m := range s.Matches {
			if !validMatchKind(m.Kind) {
				return apperr.InvalidSchema(fmt.Sprintf("invalid match kind %q", m.Kind), nil)
			}
		}

		switch s.Type {
		case StepStart:
			hasStart = true
		case StepConversion:
			hasConversion = true
		case StepPage, StepEvent, StepDecision:
			// no-op
		default:
			return apperr.InvalidSchema(fmt.Sprintf("invalid step type %q", s.Type), nil)
		}
	}

	for i := 0; i < len(def.Steps); i++ {
		if !seenOrder[i] {
			return apperr.InvalidSchema(fmt.Sprintf("step order must be contiguous from 0; missing %d", i), nil)
		}
	}
	if !hasStart {
		return apperr.InvalidSchema("funnel must contain at least one start step", nil)
	}
	if !hasConversion {
		return apperr.InvalidSchema("funnel must contain at least one conversion step", nil)
	}
	return nil
}

func validMatchKind(k MatchKind) bool {
	switch k {
	case MatchEventName, MatchPageURL, MatchPageTitle, MatchUTMSource, MatchCustomProperty:
		return true
	}
	return false
}
