package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shopsync/internal/domain"
)

// GoldenDir holds golden files, relative to the package under test.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures everything deterministic about a scenario run.
// It is serialized as canonical JSON for byte-stable comparison.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Hydration    []HydrationSnapshot `json:"hydration"`
	Trace        []TraceEvent        `json:"trace"`
	Total        string              `json:"total"`
	Cache        map[string][]string `json:"cache"`
}

// HydrationSnapshot is a domain status without its error text.
type HydrationSnapshot struct {
	Domain  string `json:"domain"`
	Phase   string `json:"phase"`
	Source  string `json:"source"`
	Records int    `json:"records"`
}

// NewTraceSnapshot builds the snapshot of a result.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	hydration := make([]HydrationSnapshot, 0, len(result.Hydration))
	for _, st := range result.Hydration {
		hydration = append(hydration, HydrationSnapshot{
			Domain:  st.Domain,
			Phase:   st.Phase.String(),
			Source:  st.Source,
			Records: st.Records,
		})
	}
	trace := result.Trace
	if trace == nil {
		trace = []TraceEvent{}
	}
	cache := make(map[string][]string, len(result.Cache))
	for coll, ids := range result.Cache {
		if ids == nil {
			ids = []string{}
		}
		cache[coll] = ids
	}
	return TraceSnapshot{
		ScenarioName: name,
		Hydration:    hydration,
		Trace:        trace,
		Total:        result.Final.CartTotal().String(),
		Cache:        cache,
	}
}

// Marshal renders the snapshot as canonical JSON followed by a newline.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	data, err := domain.MarshalCanonical(s)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGoldenIn(t, GoldenDir, scenarioName, result)
}

func assertGoldenIn(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
