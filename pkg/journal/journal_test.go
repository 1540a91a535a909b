package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	// monotonic clock so every append gets a distinct key
	base := time.Now().UTC()
	step := 0
	j.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}
	return j
}

func TestAppendAndRecentChronological(t *testing.T) {
	j := openTest(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append("tenant-a", fmt.Sprintf("in%d", i), fmt.Sprintf("out%d", i), nil))
	}

	entries, err := j.Recent("tenant-a", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "in2", entries[0].UserInput)
	assert.Equal(t, "in4", entries[2].UserInput)
}

func TestRecentIsolatesTenants(t *testing.T) {
	j := openTest(t)

	require.NoError(t, j.Append("tenant-a", "a says", "reply", nil))
	require.NoError(t, j.Append("tenant-b", "b says", "reply", nil))

	entries, err := j.Recent("tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a says", entries[0].UserInput)
}

func TestRoundTripPreservesFacts(t *testing.T) {
	j := openTest(t)

	facts := types.NewTriplets()
	facts.AddNode(&types.Node{
		Label: "Person", Name: "Alice",
		Properties: types.Properties{"hobby": {"chess"}},
	})
	require.NoError(t, j.Append("tenant-a", "in", "out", facts))

	entries, err := j.Recent("tenant-a", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Facts)
	assert.True(t, entries[0].Facts.ContainsNode(types.NodeKey{Label: "Person", Name: "Alice"}))
	assert.Equal(t, []string{"chess"}, entries[0].Facts.Nodes[0].Properties["hobby"])
}

func TestAppendRejectsBadTenant(t *testing.T) {
	j := openTest(t)

	assert.Error(t, j.Append("", "in", "out", nil))
	assert.Error(t, j.Append("a/b", "in", "out", nil))
}

func TestPruneDropsOldEntries(t *testing.T) {
	j := openTest(t)

	base := time.Now().UTC()
	j.now = func() time.Time { return base.Add(-48 * time.Hour) }
	require.NoError(t, j.Append("tenant-a", "old", "out", nil))

	j.now = func() time.Time { return base }
	require.NoError(t, j.Append("tenant-a", "fresh", "out", nil))

	removed, err := j.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := j.Recent("tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].UserInput)
}
