// Package ircmsg parses and builds single IRC protocol lines.
//
// It extends the shape of horgh/irc (prefix, command, params) with IRCv3
// message-tags, since the wire format this daemon speaks includes the
// optional leading "@tags" block that horgh/irc never had to deal with.
package ircmsg

import (
	"fmt"
	"strings"
)

// MaxBodyLength is the maximum size of a message, CRLF included, not
// counting the tags block.
const MaxBodyLength = 512

// MaxTagLength is the maximum size of the tags block, '@' and trailing
// space excluded.
const MaxTagLength = 4094

// MaxParams is the maximum number of parameters a message may carry.
const MaxParams = 15

// Message is a parsed view over one IRC protocol line.
type Message struct {
	// RawTags is the raw tag blob, without the leading '@' or trailing
	// space. It is empty if the line carried no tags. Tags are not split
	// out eagerly; call Tags(m.RawTags) to iterate them lazily.
	RawTags string

	// Prefix is the optional source prefix, without the leading ':'.
	Prefix string

	// Command is the command token, upper-cased if it was a letter
	// command, or the three digits of a numeric reply.
	Command string

	// Params holds up to MaxParams parameters, trailing (':') param
	// included.
	Params []string
}

// NumParams returns the number of parameters parsed.
func (m Message) NumParams() int {
	return len(m.Params)
}

// Param returns the i'th parameter, or "" if there is none.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// SourceNick extracts the nickname portion of the prefix, if any.
func (m Message) SourceNick() string {
	idx := strings.IndexByte(m.Prefix, '!')
	if idx == -1 {
		return m.Prefix
	}
	return m.Prefix[:idx]
}

func (m Message) String() string {
	return fmt.Sprintf("tags=%q prefix=%q command=%q params=%q", m.RawTags, m.Prefix, m.Command, m.Params)
}

// Parse parses one protocol line. line must not include the trailing
// CRLF; line framing (finding the "\r\n" boundary, enforcing a read
// deadline) is the caller's concern, not this package's.
//
// Parse does not itself reject an over-long tag blob: that is a
// protocol-level decision (ERR_INPUTTOOLONG) made by the command
// dispatcher, which needs the raw tag length regardless of whether the
// rest of the line parses. Use TagsTooLong to check it.
func Parse(line string) (Message, error) {
	var m Message
	pos := 0

	if len(line) == 0 {
		return m, fmt.Errorf("ircmsg: empty line")
	}

	if line[0] == '@' {
		end := strings.IndexByte(line, ' ')
		if end == -1 {
			return m, fmt.Errorf("ircmsg: malformed message: tags only")
		}
		m.RawTags = line[1:end]
		pos = end + 1
		pos = skipSpaces(line, pos)
	}

	if pos >= len(line) {
		return m, fmt.Errorf("ircmsg: malformed message: empty after tags")
	}

	if line[pos] == ':' {
		end := strings.IndexByte(line[pos:], ' ')
		if end == -1 {
			return m, fmt.Errorf("ircmsg: malformed message: prefix only")
		}
		m.Prefix = line[pos+1 : pos+end]
		if m.Prefix == "" {
			return m, fmt.Errorf("ircmsg: empty prefix")
		}
		pos += end
		pos = skipSpaces(line, pos)
	}

	if pos >= len(line) {
		return m, fmt.Errorf("ircmsg: malformed message: no command")
	}

	cmdStart := pos
	for pos < len(line) && line[pos] != ' ' {
		if line[pos] == '\x00' || line[pos] == '\r' || line[pos] == '\n' {
			return m, fmt.Errorf("ircmsg: invalid character in command")
		}
		pos++
	}
	if pos == cmdStart {
		return m, fmt.Errorf("ircmsg: zero length command")
	}
	m.Command = strings.ToUpper(line[cmdStart:pos])

	params, err := parseParams(line[pos:])
	if err != nil {
		return m, err
	}
	if len(params) > MaxParams {
		return m, fmt.Errorf("ircmsg: too many parameters")
	}
	m.Params = params

	return m, nil
}

// TagsTooLong reports whether the raw tag blob of a line exceeds
// MaxTagLength. Pass it Message.RawTags: Parse strips the leading '@'
// and the separating space, which MaxTagLength also excludes.
func TagsTooLong(rawTags string) bool {
	return len(rawTags) > MaxTagLength
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && s[pos] == ' ' {
		pos++
	}
	return pos
}

// parseParams parses the "(SP param)* [SP ':' trailing]" tail of a
// message. rest starts right after the command token (so it begins with
// a space, or is empty).
func parseParams(rest string) ([]string, error) {
	var params []string
	pos := 0
	for pos < len(rest) {
		if rest[pos] != ' ' {
			return nil, fmt.Errorf("ircmsg: unexpected character after command/param: %q", rest[pos])
		}
		pos = skipSpaces(rest, pos)
		if pos >= len(rest) {
			break
		}
		if rest[pos] == ':' {
			params = append(params, rest[pos+1:])
			return params, nil
		}
		start := pos
		for pos < len(rest) && rest[pos] != ' ' {
			pos++
		}
		params = append(params, rest[start:pos])
	}
	return params, nil
}
