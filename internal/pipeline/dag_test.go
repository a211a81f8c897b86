package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDAG_AcceptsAcyclic(t *testing.T) {
	steps := []Step{
		{Name: "dl_am"},
		{Name: "dl_pm"},
		{Name: "merge", Dependencies: []string{"dl_am", "dl_pm"}},
		{Name: "upload", Dependencies: []string{"merge"}},
	}
	assert.NoError(t, ValidateDAG(steps))
}

func TestValidateDAG_RejectsCycle(t *testing.T) {
	steps := []Step{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	}
	err := ValidateDAG(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateDAG_RejectsUnknownDependency(t *testing.T) {
	steps := []Step{
		{Name: "merge", Dependencies: []string{"dl_am"}},
	}
	err := ValidateDAG(steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestTopologicalSort_OrdersDependenciesFirst(t *testing.T) {
	steps := []Step{
		{Name: "upload", Dependencies: []string{"merge"}},
		{Name: "merge", Dependencies: []string{"dl_am", "dl_pm"}},
		{Name: "dl_am"},
		{Name: "dl_pm"},
	}
	sorted, err := TopologicalSort(steps)
	require.NoError(t, err)

	index := make(map[string]int, len(sorted))
	for i, s := range sorted {
		index[s.Name] = i
	}
	assert.Less(t, index["dl_am"], index["merge"])
	assert.Less(t, index["dl_pm"], index["merge"])
	assert.Less(t, index["merge"], index["upload"])
}
