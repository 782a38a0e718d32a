package modes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserModesBasic(t *testing.T) {
	changes, errs := ParseUserModes("+iw-s")
	require.Empty(t, errs)
	assert.Equal(t, []UserChange{
		{Mode: Invisible, Value: true},
		{Mode: Wallops, Value: true},
		{Mode: ServerNotices, Value: false},
	}, changes)
}

func TestParseUserModesUnknown(t *testing.T) {
	changes, errs := ParseUserModes("+iz")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownMode, errs[0].Kind)
	assert.Equal(t, byte('z'), errs[0].Mode)
	assert.Equal(t, []UserChange{{Mode: Invisible, Value: true}}, changes)
}

func TestParseChannelModesSimpleBooleans(t *testing.T) {
	changes, errs := ParseChannelModes("+nt-m", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{
		{Kind: NoExternalMessages, Value: true},
		{Kind: TopicRestricted, Value: true},
		{Kind: Moderated, Value: false},
	}, changes)
}

func TestParseChannelModesPrivateIsUnbacked(t *testing.T) {
	// 'p' decodes like any other simple boolean; it is internal/state's
	// apply step that treats it as a no-op, not the parser.
	changes, errs := ParseChannelModes("+p", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: Private, Value: true}}, changes)
}

func TestParseChannelModesSecretWorks(t *testing.T) {
	changes, errs := ParseChannelModes("+s", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: Secret, Value: true}}, changes)
}

func TestParseChannelModesKeyMandatory(t *testing.T) {
	changes, errs := ParseChannelModes("+k", nil)
	assert.Empty(t, changes)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingParam, errs[0].Kind)
	assert.Equal(t, byte('k'), errs[0].Mode)

	changes, errs = ParseChannelModes("+k", []string{"hunter2"})
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: Key, Value: true, Param: "hunter2"}}, changes)
}

func TestParseChannelModesLimitSetRequiresParam(t *testing.T) {
	changes, errs := ParseChannelModes("+l", nil)
	assert.Empty(t, changes)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingParam, errs[0].Kind)
	assert.Equal(t, byte('l'), errs[0].Mode)
}

func TestParseChannelModesLimitUnsetNeedsNoParam(t *testing.T) {
	changes, errs := ParseChannelModes("-l", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: UserLimit, Value: false}}, changes)
}

func TestParseChannelModesLimitSetWithParam(t *testing.T) {
	changes, errs := ParseChannelModes("+l", []string{"10"})
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: UserLimit, Value: true, Param: "10"}}, changes)
}

func TestParseChannelModesBanListQuery(t *testing.T) {
	changes, errs := ParseChannelModes("+b", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: Ban, IsQuery: true}}, changes)
}

func TestParseChannelModesBanSet(t *testing.T) {
	changes, errs := ParseChannelModes("+b", []string{"*!*@bad.example"})
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{{Kind: Ban, Value: true, Param: "*!*@bad.example"}}, changes)
}

func TestParseChannelModesExceptionAndInvitationListQuery(t *testing.T) {
	changes, errs := ParseChannelModes("+eI", nil)
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{
		{Kind: Exception, IsQuery: true},
		{Kind: Invitation, IsQuery: true},
	}, changes)
}

func TestParseChannelModesOperatorVoiceMandatory(t *testing.T) {
	changes, errs := ParseChannelModes("+o", nil)
	assert.Empty(t, changes)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingParam, errs[0].Kind)
	assert.Equal(t, byte('o'), errs[0].Mode)

	changes, errs = ParseChannelModes("+ov", []string{"alice", "bob"})
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{
		{Kind: Operator, Value: true, Param: "alice"},
		{Kind: Voice, Value: true, Param: "bob"},
	}, changes)
}

func TestParseChannelModesUnknownLetterContinues(t *testing.T) {
	changes, errs := ParseChannelModes("+zn", nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownMode, errs[0].Kind)
	assert.Equal(t, byte('z'), errs[0].Mode)
	assert.Equal(t, []ChannelChange{{Kind: NoExternalMessages, Value: true}}, changes)
}

func TestParseChannelModesSignPersistsAcrossParams(t *testing.T) {
	changes, errs := ParseChannelModes("-ov", []string{"alice", "bob"})
	require.Empty(t, errs)
	assert.Equal(t, []ChannelChange{
		{Kind: Operator, Value: false, Param: "alice"},
		{Kind: Voice, Value: false, Param: "bob"},
	}, changes)
}
