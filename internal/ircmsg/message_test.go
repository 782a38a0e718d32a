package ircmsg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	m, err := Parse(":ser!~ser@127.0.0.1 PRIVMSG #room :hello there")
	require.NoError(t, err)
	assert.Equal(t, "ser!~ser@127.0.0.1", m.Prefix)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"#room", "hello there"}, m.Params)
	assert.Equal(t, "ser", m.SourceNick())
}

func TestParseNoPrefix(t *testing.T) {
	m, err := Parse("NICK ser")
	require.NoError(t, err)
	assert.Equal(t, "", m.Prefix)
	assert.Equal(t, "NICK", m.Command)
	assert.Equal(t, []string{"ser"}, m.Params)
}

func TestParseUppercasesCommand(t *testing.T) {
	m, err := Parse("nick ser")
	require.NoError(t, err)
	assert.Equal(t, "NICK", m.Command)
}

func TestParseWithTags(t *testing.T) {
	m, err := Parse("@id=123;label=abc :ser PRIVMSG #room :hi")
	require.NoError(t, err)
	assert.Equal(t, "id=123;label=abc", m.RawTags)
	assert.Equal(t, "PRIVMSG", m.Command)

	v, ok := TagValue(m.RawTags, "label")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestParseTrailingEmpty(t *testing.T) {
	m, err := Parse("PRIVMSG #room :")
	require.NoError(t, err)
	assert.Equal(t, []string{"#room", ""}, m.Params)
}

func TestParseNoParams(t *testing.T) {
	m, err := Parse("LIST")
	require.NoError(t, err)
	assert.Empty(t, m.Params)
}

func TestParseTooManyParams(t *testing.T) {
	var b strings.Builder
	b.WriteString("CMD")
	for i := 0; i < MaxParams+1; i++ {
		b.WriteString(" p")
	}
	_, err := Parse(b.String())
	assert.Error(t, err)
}

func TestParseEmptyLine(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestTagsTooLong(t *testing.T) {
	assert.False(t, TagsTooLong(strings.Repeat("a", MaxTagLength)))
	assert.True(t, TagsTooLong(strings.Repeat("a", MaxTagLength+1)))
}

func TestTagUnescape(t *testing.T) {
	tags := Tags(`a=b\:c;b=hello\sworld;c=x\\y;d=trail\`)
	byKey := map[string]string{}
	for _, tag := range tags {
		byKey[tag.Key] = tag.Value
	}
	assert.Equal(t, "b;c", byKey["a"])
	assert.Equal(t, "hello world", byKey["b"])
	assert.Equal(t, `x\y`, byKey["c"])
	assert.Equal(t, "trail", byKey["d"])
}

func TestTagNoValue(t *testing.T) {
	tags := Tags("solo;withval=1")
	require.Len(t, tags, 2)
	assert.False(t, tags[0].HasValue)
	assert.True(t, tags[1].HasValue)
}

// Round-trip: parse(build(M)) == M for any valid message whose params
// satisfy the 512-byte cap.
func TestRoundTrip(t *testing.T) {
	line, _ := NewBuilder("PRIVMSG").
		Prefix("ser!~ser@127.0.0.1").
		Param("#room").
		TrailingParam("hello there").
		Build()

	m, err := Parse(strings.TrimSuffix(line, "\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "ser!~ser@127.0.0.1", m.Prefix)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"#room", "hello there"}, m.Params)
}
