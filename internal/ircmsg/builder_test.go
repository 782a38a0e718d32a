package ircmsg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNoTags(t *testing.T) {
	line, tagEnd := NewBuilder("001").
		Prefix("elli.dri").
		Param("ser").
		TrailingParam("Welcome home, ser!~ser@127.0.0.1").
		Build()

	assert.Equal(t, 0, tagEnd)
	assert.Equal(t, ":elli.dri 001 ser :Welcome home, ser!~ser@127.0.0.1\r\n", line)
}

func TestBuildWithTags(t *testing.T) {
	line, tagEnd := NewBuilder("PRIVMSG").
		Tag("msgid", "123").
		Tag("time", "2026-07-30T00:00:00.000Z").
		Prefix("ser!~ser@127.0.0.1").
		Param("#room").
		TrailingParam("hi").
		Build()

	require.True(t, strings.HasPrefix(line, "@msgid=123;time=2026-07-30T00:00:00.000Z "))
	assert.Equal(t, len("@msgid=123;time=2026-07-30T00:00:00.000Z "), tagEnd)

	// Tag-stripped suffix (what a non-message-tags recipient gets) is a
	// valid message on its own.
	stripped := line[tagEnd:]
	assert.Equal(t, ":ser!~ser@127.0.0.1 PRIVMSG #room :hi\r\n", stripped)
}

func TestBuildEscapesTagValues(t *testing.T) {
	line, _ := NewBuilder("TAGMSG").Tag("+example", "hello; world").Build()
	assert.Contains(t, line, `hello\:\sworld`)
}

func TestBuildTruncatesLastParam(t *testing.T) {
	long := strings.Repeat("x", 1000)
	line, _ := NewBuilder("PRIVMSG").
		Prefix("ser!~ser@127.0.0.1").
		Param("#room").
		TrailingParam(long).
		Build()

	assert.LessOrEqual(t, len(line), MaxBodyLength)
	assert.True(t, strings.HasSuffix(line, "\r\n"))
}

func TestBuildTrailingNeedsColonWhenEmpty(t *testing.T) {
	line, _ := NewBuilder("PRIVMSG").Param("#room").TrailingParam("").Build()
	assert.Equal(t, "PRIVMSG #room :\r\n", line)
}
