package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victoralfred/funnelengine/internal/apperr"
)

func validDef() Definition {
	return Definition{
		Name: "checkout",
		Steps: []StepDefinition{
			{OrderIndex: 0, Type: StepStart, Label: "begin", Matches: []MatchDefinition{{Kind: MatchEventName, Rules: map[string]any{"value": "begin"}}}},
			{OrderIndex: 1, Type: StepPage, Label: "checkout page", Matches: []MatchDefinition{{Kind: MatchPageURL, Rules: map[string]any{"pattern": "/checkout"}}}},
			{OrderIndex: 2, Type: StepConversion, Label: "purchase", Matches: []MatchDefinition{{Kind: MatchEventName, Rules: map[string]any{"value": "purchase"}}}},
		},
	}
}

func TestValidateDefinitionAcceptsWellFormedFunnel(t *testing.T) {
	assert.NoError(t, ValidateDefinition(validDef()))
}

func TestValidateDefinitionRejectsEmptyName(t *testing.T) {
	d := validDef()
	d.Name = "   "
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsNoSteps(t *testing.T) {
	err := ValidateDefinition(Definition{Name: "x"})
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsOrderGap(t *testing.T) {
	d := validDef()
	d.Steps[2].OrderIndex = 5 // gap: 0,1,5 instead of 0,1,2
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsDuplicateOrder(t *testing.T) {
	d := validDef()
	d.Steps[1].OrderIndex = 0
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsMissingStart(t *testing.T) {
	d := validDef()
	d.Steps[0].Type = StepPage
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsMissingConversion(t *testing.T) {
	d := validDef()
	d.Steps[2].Type = StepPage
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsStepWithNoMatches(t *testing.T) {
	d := validDef()
	d.Steps[1].Matches = nil
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsInvalidMatchKind(t *testing.T) {
	d := validDef()
	d.Steps[1].Matches[0].Kind = MatchKind("bogus")
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateDefinitionRejectsInvalidStepType(t *testing.T) {
	d := validDef()
	d.Steps[1].Type = StepType("bogus")
	err := ValidateDefinition(d)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestLatestPublishedPicksHighestVersionNumber(t *testing.T) {
	f := &Funnel{Versions: []*Version{
		{Version: 1, State: VersionArchived},
		{Version: 2, State: VersionPublished},
		{Version: 3, State: VersionDraft},
	}}
	got := f.LatestPublished()
	assert.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
}

func TestLatestPublishedNilWhenNonePublished(t *testing.T) {
	f := &Funnel{Versions: []*Version{{Version: 1, State: VersionDraft}}}
	assert.Nil(t, f.LatestPublished())
}

func TestDraftFindsSingleDraftVersion(t *testing.T) {
	f := &Funnel{Versions: []*Version{
		{Version: 1, State: VersionPublished},
		{Version: 2, State: VersionDraft},
	}}
	d := f.Draft()
	assert.NotNil(t, d)
	assert.Equal(t, 2, d.Version)
}

func TestIsArchived(t *testing.T) {
	f := &Funnel{}
	assert.False(t, f.IsArchived())
	now := time.Now()
	f.ArchivedAt = &now
	assert.True(t, f.IsArchived())
}
