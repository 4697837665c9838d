package abtest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
)

func TestSelectVariantIsSticky(t *testing.T) {
	test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: 100}
	first := SelectVariant(test, "req-1")
	for i := 0; i < 3; i++ {
		require.Equal(t, first, SelectVariant(test, "req-1"))
	}
}

func TestSelectVariantZeroTrafficAlwaysControl(t *testing.T) {
	test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: 0}
	for i := 0; i < 50; i++ {
		require.Equal(t, "alpha", SelectVariant(test, fmt.Sprintf("req-%d", i)))
	}
}

func TestSelectVariantFullTrafficSplitsNear50_50(t *testing.T) {
	test := domain.ABTest{ModelA: "alpha", ModelB: "beta", TrafficPercent: 100}
	bCount := 0
	const n = 1000
	for i := 0; i < n; i++ {
		if SelectVariant(test, fmt.Sprintf("request-%d", i)) == "beta" {
			bCount++
		}
	}
	share := float64(bCount) / float64(n)
	require.InDelta(t, 0.5, share, 0.05)
}

func TestCreateTestThenGetActiveTestRoundTrips(t *testing.T) {
	e := New(Config{})
	created, err := e.CreateTest(CreateTestRequest{ModelA: "alpha", ModelB: "beta", TrafficPercent: 50})
	require.NoError(t, err)

	active := e.GetActiveTest(domain.TaskTypeBugFix)
	require.NotNil(t, active)
	require.Equal(t, created.ID, active.ID)
}

func TestGetActiveTestRespectsTaskTypeFilter(t *testing.T) {
	e := New(Config{})
	filter := domain.TaskTypeFeature
	_, err := e.CreateTest(CreateTestRequest{ModelA: "a", ModelB: "b", TrafficPercent: 50, TaskTypeFilter: &filter})
	require.NoError(t, err)

	require.Nil(t, e.GetActiveTest(domain.TaskTypeBugFix))
	require.NotNil(t, e.GetActiveTest(domain.TaskTypeFeature))
}

func TestGetResultsNoWinnerBelowMinSamples(t *testing.T) {
	e := New(Config{})
	test, err := e.CreateTest(CreateTestRequest{ModelA: "a", ModelB: "b", TrafficPercent: 100})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, e.RecordResult(test.ID, "A", domain.ABTestResult{RequestID: fmt.Sprintf("r%d", i), Success: true}))
	}
	results, err := e.GetResults(test.ID)
	require.NoError(t, err)
	require.Empty(t, results.Winner)
}

func TestGetResultsDeclaresWinnerAtSignificantZScore(t *testing.T) {
	e := New(Config{})
	test, err := e.CreateTest(CreateTestRequest{ModelA: "a", ModelB: "b", TrafficPercent: 100})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		require.NoError(t, e.RecordResult(test.ID, "A", domain.ABTestResult{Success: i%10 == 0})) // ~10% success
	}
	for i := 0; i < 40; i++ {
		require.NoError(t, e.RecordResult(test.ID, "B", domain.ABTestResult{Success: i%10 != 0})) // ~90% success
	}
	results, err := e.GetResults(test.ID)
	require.NoError(t, err)
	require.Equal(t, "B", results.Winner)
}

func TestEndTestRemovesFromActiveSelection(t *testing.T) {
	e := New(Config{})
	test, err := e.CreateTest(CreateTestRequest{ModelA: "a", ModelB: "b", TrafficPercent: 50})
	require.NoError(t, err)
	require.NoError(t, e.EndTest(test.ID))
	require.Nil(t, e.GetActiveTest(domain.TaskTypeBugFix))
}
