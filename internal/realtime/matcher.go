package realtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/victoralfred/funnelengine/internal/domain/event"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
)

// matchStep returns the first step in version whose matches accept ev, or
// nil if none do, per §4.4's match-kind rules.
func matchStep(version *funnel.Version, ev *event.Event) *funnel.Step {
	for _, step := range version.Steps {
		for _, m := range step.Matches {
			if matchRule(m, ev) {
				return step
			}
		}
	}
	return nil
}

func matchRule(m *funnel.Match, ev *event.Event) bool {
	switch m.Kind {
	case funnel.MatchEventName:
		return ruleString(m, "value") == ev.EventName
	case funnel.MatchPageURL:
		if ev.Page == nil {
			return false
		}
		return matchPattern(ruleString(m, "pattern"), ev.Page.URL)
	case funnel.MatchPageTitle:
		if ev.Page == nil {
			return false
		}
		return matchPattern(ruleString(m, "pattern"), ev.Page.Title)
	case funnel.MatchUTMSource:
		if ev.UTM == nil {
			return false
		}
		return ruleString(m, "value") == ev.UTM.Source
	case funnel.MatchCustomProperty:
		name := ruleString(m, "name")
		want := fmt.Sprintf("%v", m.Rules["value"])
		got, ok := ev.PropString(name)
		return ok && got == want
	}
	return false
}

func ruleString(m *funnel.Match, key string) string {
	v, ok := m.Rules[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// matchPattern implements the page_url/page_title rule: glob match
// (case-insensitive) against the whole value when the pattern carries
// `*`/`?`, else a case-insensitive substring match. `*` matches any run of
// characters, including `/`, and `?` matches exactly one character; both
// operands are lower-cased first.
func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	lowerPattern := strings.ToLower(pattern)
	lowerValue := strings.ToLower(value)

	if strings.ContainsAny(pattern, "*?") {
		expr := strings.NewReplacer(`\*`, ".*", `\?`, ".").Replace(regexp.QuoteMeta(lowerPattern))
		ok, err := regexp.MatchString("^(?s:"+expr+")$", lowerValue)
		return err == nil && ok
	}
	return strings.Contains(lowerValue, lowerPattern)
}
