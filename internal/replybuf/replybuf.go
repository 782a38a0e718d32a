// Package replybuf stages the outbound lines produced while handling
// one inbound command, and settles how they finally reach the wire:
// plain, as a single labeled ACK, or wrapped in a labeled-response
// BATCH, per the client's request label. Settling happens once, in
// Flush, rather than line by line, because the wrapping decision
// depends on how many lines the whole command produced.
//
// Grounded on the rb.reply/rb.message/ctx.rb.tagged_message/end_lr
// usage in ellidri's handler functions, and on the teacher's
// messageFromServer nick-prefixing convention for numerics.
package replybuf

import (
	"github.com/google/uuid"

	"github.com/horgh/cinder/internal/ircmsg"
)

// Line is one fully rendered protocol line, ready to hand to a
// client's outbound sink.
type Line struct {
	Text   string
	TagEnd int
}

// Buffer accumulates the replies produced by one command.
type Buffer struct {
	domain string
	nick   string
	label  string

	builders []*ircmsg.Builder
}

// New starts a buffer for one command. nick is the client's current
// display nick ("*" before registration completes, per the teacher's
// messageFromServer); label is the client's labeled-response label, or
// "" if the client didn't request one or lacks the capability.
func New(domain, nick, label string) *Buffer {
	return &Buffer{domain: domain, nick: nick, label: label}
}

// SetNick updates the nick used to prefix numerics, for commands (NICK
// during registration) that change it mid-handling.
func (b *Buffer) SetNick(nick string) {
	b.nick = nick
}

// Numeric starts a server numeric reply. The server domain is the
// prefix; the client's current nick is always the first parameter,
// same as the teacher's messageFromServer does for any isNumericCommand.
func (b *Buffer) Numeric(code string) *ircmsg.Builder {
	return ircmsg.NewBuilder(code).Prefix(b.domain).Param(b.nick)
}

// Message starts a message relayed from another entity (a client or
// the server acting as a client), e.g. PRIVMSG/NOTICE/JOIN/PART/MODE
// fan-out. fromPrefix is the full nick!user@host (or bare server
// domain for server-origin notices).
func (b *Buffer) Message(fromPrefix, command string) *ircmsg.Builder {
	return ircmsg.NewBuilder(command).Prefix(fromPrefix)
}

// TaggedMessage starts a relayed message that also carries forward the
// originator's own client-only tags (e.g. +typing on a TAGMSG), same
// as ctx.rb.tagged_message in the grounding source.
func (b *Buffer) TaggedMessage(rawTags, fromPrefix, command string) *ircmsg.Builder {
	return ircmsg.NewBuilder(command).CopyTags(rawTags).Prefix(fromPrefix)
}

// Raw starts a message with no prefix, used for ERROR lines sent just
// before closing a connection.
func (b *Buffer) Raw(command string) *ircmsg.Builder {
	return ircmsg.NewBuilder(command)
}

// Append queues a built-but-not-yet-rendered line. Render is deferred
// to Flush so that label/batch tags can still be attached.
func (b *Buffer) Append(builder *ircmsg.Builder) {
	b.builders = append(b.builders, builder)
}

// Empty reports whether any line has been queued.
func (b *Buffer) Empty() bool {
	return len(b.builders) == 0
}

// Flush renders every queued line and applies the labeled-response
// wrapping required by the client's label, if any:
//
//   - no label: lines render as-is.
//   - label, zero lines: a single ACK carrying only the label tag.
//   - label, one line: the label tag is attached directly to it.
//   - label, more than one line: wrapped in a labeled-response BATCH,
//     with each inner line tagged to the batch reference.
func (b *Buffer) Flush() []Line {
	switch {
	case b.label == "":
		return render(b.builders)

	case len(b.builders) == 0:
		line, tagEnd := ircmsg.NewBuilder("ACK").Tag("label", b.label).Build()
		return []Line{{Text: line, TagEnd: tagEnd}}

	case len(b.builders) == 1:
		b.builders[0].Tag("label", b.label)
		return render(b.builders)

	default:
		ref := uuid.New().String()
		start := ircmsg.NewBuilder("BATCH").
			Tag("label", b.label).
			Prefix(b.domain).
			Param("+" + ref).
			Param("labeled-response")

		var lines []Line
		sl, se := start.Build()
		lines = append(lines, Line{Text: sl, TagEnd: se})

		for _, bld := range b.builders {
			bld.Tag("batch", ref)
		}
		lines = append(lines, render(b.builders)...)

		end := ircmsg.NewBuilder("BATCH").Prefix(b.domain).Param("-" + ref)
		el, ee := end.Build()
		lines = append(lines, Line{Text: el, TagEnd: ee})

		return lines
	}
}

func render(builders []*ircmsg.Builder) []Line {
	lines := make([]Line, 0, len(builders))
	for _, bld := range builders {
		text, tagEnd := bld.Build()
		lines = append(lines, Line{Text: text, TagEnd: tagEnd})
	}
	return lines
}
