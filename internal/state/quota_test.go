package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostKnownAndUnknownCommands(t *testing.T) {
	assert.Equal(t, uint32(4), cost("PRIVMSG"))
	assert.Equal(t, uint32(1), cost("NOTACOMMAND"))
}

func TestQuotaAllowsWithinBurstAndDeniesOverBudget(t *testing.T) {
	q := newQuota(1, 5)

	assert.True(t, q.allow(5))
	assert.False(t, q.allow(1))
}
