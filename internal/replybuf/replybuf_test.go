package replybuf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericPrefixesNickAndDomain(t *testing.T) {
	rb := New("cinder.example", "ser", "")
	rb.Append(rb.Numeric("001").TrailingParam("Welcome home, ser!~ser@127.0.0.1"))
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.Equal(t, ":cinder.example 001 ser :Welcome home, ser!~ser@127.0.0.1\r\n", lines[0].Text)
}

func TestMessageUsesGivenPrefix(t *testing.T) {
	rb := New("cinder.example", "ser", "")
	rb.Append(rb.Message("other!~other@host", "PRIVMSG").Param("#room").TrailingParam("hi"))
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.Equal(t, ":other!~other@host PRIVMSG #room :hi\r\n", lines[0].Text)
}

func TestEmptyBufferNoLabelProducesNoLines(t *testing.T) {
	rb := New("cinder.example", "ser", "")
	assert.True(t, rb.Empty())
	assert.Empty(t, rb.Flush())
}

func TestLabeledEmptyProducesBareAck(t *testing.T) {
	rb := New("cinder.example", "ser", "abc123")
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0].Text, "label=abc123")
	assert.Contains(t, lines[0].Text, "ACK")
}

func TestLabeledSingleLineGetsLabelTagDirectly(t *testing.T) {
	rb := New("cinder.example", "ser", "abc123")
	rb.Append(rb.Numeric("221").TrailingParam("+i"))
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0].Text, "@label=abc123 "))
	assert.Contains(t, lines[0].Text, "221 ser")
}

func TestLabeledMultiLineWrapsInBatch(t *testing.T) {
	rb := New("cinder.example", "ser", "abc123")
	rb.Append(rb.Numeric("353").Param("=").Param("#room").TrailingParam("ser other"))
	rb.Append(rb.Numeric("366").Param("#room").TrailingParam("End of /NAMES list."))
	lines := rb.Flush()
	require.Len(t, lines, 4)

	assert.True(t, strings.HasPrefix(lines[0].Text, "@label=abc123 "))
	assert.Contains(t, lines[0].Text, "BATCH +")
	assert.Contains(t, lines[0].Text, "labeled-response")

	assert.Contains(t, lines[1].Text, "batch=")
	assert.Contains(t, lines[1].Text, "353")
	assert.Contains(t, lines[2].Text, "batch=")
	assert.Contains(t, lines[2].Text, "366")

	assert.Contains(t, lines[3].Text, "BATCH -")
}

func TestTaggedMessageCopiesOriginatorTags(t *testing.T) {
	rb := New("cinder.example", "ser", "")
	rb.Append(rb.TaggedMessage("+example=42", "other!~other@host", "TAGMSG").Param("#room"))
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0].Text, "@+example=42 "))
}

func TestSetNickAffectsLaterNumerics(t *testing.T) {
	rb := New("cinder.example", "*", "")
	rb.SetNick("ser")
	rb.Append(rb.Numeric("001").TrailingParam("hi"))
	lines := rb.Flush()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0].Text, "001 ser")
}
