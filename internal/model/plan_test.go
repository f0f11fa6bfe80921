package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffSet_ChangesAndCounts(t *testing.T) {
	d := &DiffSet{Operations: []DiffOperation{
		{AppID: "a1", Kind: OpUpdate},
		{AppID: "a1", Kind: OpNoop, Fenced: true},
		{AppID: "a2", Kind: OpNoop},
		{AppID: "a3", Kind: OpAdd},
	}}

	assert.False(t, d.Empty())
	assert.Len(t, d.Changes(), 2)
	assert.Equal(t, []string{"a1", "a3"}, d.ChangedApps())
	assert.Equal(t, 2, d.Counts()[OpNoop])

	assert.True(t, (&DiffSet{Operations: []DiffOperation{{Kind: OpNoop}}}).Empty())
}

func TestRunReport_Tally(t *testing.T) {
	r := &RunReport{Results: []OperationResult{
		{Outcome: OutcomeSuccess},
		{Outcome: OutcomeFailed},
		{Outcome: OutcomeSkipped},
		{Outcome: OutcomeSuccess},
	}}
	ok, failed, skipped := r.Tally()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.True(t, r.HasFailures())
}
