package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCohortInsightImprovingTrend(t *testing.T) {
	assert.Equal(t, "cohort conversion rate is improving over time", cohortInsight(CohortComparison{TrendSlope: 1}))
}

func TestCohortInsightDecliningTrend(t *testing.T) {
	assert.Equal(t, "cohort conversion rate is declining over time", cohortInsight(CohortComparison{TrendSlope: -1}))
}

func TestCohortInsightHighVariance(t *testing.T) {
	assert.Equal(t, "cohort performance is highly variable", cohortInsight(CohortComparison{CoefficientOfVariation: 0.9}))
}

func TestCohortInsightStableByDefault(t *testing.T) {
	assert.Equal(t, "cohort performance is stable", cohortInsight(CohortComparison{TrendSlope: 0.1, CoefficientOfVariation: 0.1}))
}
