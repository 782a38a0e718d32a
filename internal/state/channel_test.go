package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horgh/cinder/internal/modes"
)

func TestAddMemberFirstJoinerIsCreatorOperator(t *testing.T) {
	ch := NewChannel("#room", "")
	ch.AddMember(1)
	ch.AddMember(2)

	assert.True(t, ch.Members[1].Creator)
	assert.True(t, ch.Members[1].Operator)
	assert.False(t, ch.Members[2].Operator)
}

func TestApplyModeChangeRejectsDoubleKeySet(t *testing.T) {
	ch := NewChannel("#room", "")
	nickOf := func(int) string { return "" }

	applied, err := ch.ApplyModeChange(modes.ChannelChange{Kind: modes.Key, Value: true, Param: "first"}, nickOf)
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = ch.ApplyModeChange(modes.ChannelChange{Kind: modes.Key, Value: true, Param: "second"}, nickOf)
	assert.ErrorIs(t, err, errKeySet)
	assert.Equal(t, "first", ch.Key)
}

func TestApplyModeChangeBanIsIdempotent(t *testing.T) {
	ch := NewChannel("#room", "")
	nickOf := func(int) string { return "" }

	applied, err := ch.ApplyModeChange(modes.ChannelChange{Kind: modes.Ban, Value: true, Param: "*!*@bad.example"}, nickOf)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, ch.IsBanned("*!*@bad.example"))

	applied, err = ch.ApplyModeChange(modes.ChannelChange{Kind: modes.Ban, Value: true, Param: "*!*@bad.example"}, nickOf)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyModeChangeOperatorOnNonMemberFails(t *testing.T) {
	ch := NewChannel("#room", "")
	ch.AddMember(1)
	nickOf := func(id int) string {
		if id == 1 {
			return "alice"
		}
		return ""
	}

	_, err := ch.ApplyModeChange(modes.ChannelChange{Kind: modes.Operator, Value: true, Param: "bob"}, nickOf)
	assert.ErrorIs(t, err, errUserNotInChannel)
}
