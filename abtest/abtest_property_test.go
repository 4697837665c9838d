package abtest

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/coderun/orchestrator/domain"
)

// TestSelectVariantStickyProperty checks that for any test configuration and
// request id, repeated SelectVariant calls always return the same variant.
func TestSelectVariantStickyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same requestId always maps to the same variant", prop.ForAll(
		func(requestID string, trafficPercent int) bool {
			test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: trafficPercent}
			first := SelectVariant(test, requestID)
			for i := 0; i < 5; i++ {
				if SelectVariant(test, requestID) != first {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
		gen.IntRange(0, 100),
	))

	properties.Property("selected variant is always one of the test's models", prop.ForAll(
		func(requestID string, trafficPercent int) bool {
			test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: trafficPercent}
			v := SelectVariant(test, requestID)
			return v == "alpha" || v == "beta"
		},
		gen.AnyString(),
		gen.IntRange(0, 100),
	))

	properties.Property("zero traffic always routes to the control", prop.ForAll(
		func(requestID string) bool {
			test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: 0}
			return SelectVariant(test, requestID) == "alpha"
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
