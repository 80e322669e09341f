package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyForDeterministic(t *testing.T) {
	k1 := KeyFor("funnel:config", map[string]any{"funnelId": 1, "tenantId": 2})
	k2 := KeyFor("funnel:config", map[string]any{"tenantId": 2, "funnelId": 1})
	assert.Equal(t, k1, k2, "key must be order-independent over its params")
	assert.Equal(t, "funnel:config:funnelId=1:tenantId=2", k1)
}

func TestKeyForDiffersOnParams(t *testing.T) {
	k1 := KeyFor("funnel:conversion", map[string]any{"funnelId": 1})
	k2 := KeyFor("funnel:conversion", map[string]any{"funnelId": 2})
	assert.NotEqual(t, k1, k2)
}

func TestTTLForFixedClasses(t *testing.T) {
	cases := map[Class]time.Duration{
		ClassFunnelConfig:      5 * time.Minute,
		ClassFunnelList:        2 * time.Minute,
		ClassConversionMetrics: 15 * time.Minute,
		ClassDailyMetrics:      time.Hour,
		ClassLiveMetrics:       30 * time.Second,
		ClassUserState:         time.Minute,
		ClassCohortAnalysis:    time.Hour,
		ClassPathAnalysis:      30 * time.Minute,
	}
	for class, want := range cases {
		t.Run(string(class), func(t *testing.T) {
			assert.Equal(t, want, TTLFor(class))
		})
	}
}

func TestHashKeyStableForLongKeys(t *testing.T) {
	longKey := "funnel:list:"
	for i := 0; i < 500; i++ {
		longKey += "x"
	}
	h1 := hashKey(longKey)
	h2 := hashKey(longKey)
	assert.Equal(t, h1, h2)
	assert.Less(t, len(h1), len(longKey))
}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte(`{"hello":"world","n":1}`)
	compressed, err := compress(payload)
	assert.NoError(t, err)
	plain, err := decompress(compressed)
	assert.NoError(t, err)
	assert.Equal(t, payload, plain)
}
