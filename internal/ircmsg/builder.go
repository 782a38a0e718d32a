package ircmsg

import "strings"

// Builder builds one outbound protocol line under the wire caps. It is
// the construction-side counterpart to Parse: callers append tags with
// Tag, then a prefix/command/params, and Build renders the final
// "\r\n"-terminated line.
//
// Build also returns the byte offset at which the tag block ends (valid
// on the string it returns) so a caller holding one client's
// capability set can decide, per recipient, whether to send the full
// line or the tag-stripped suffix starting at that offset, without
// re-serializing the message once per recipient.
type Builder struct {
	tags    []Tag
	prefix  string
	command string
	params  []string

	// trailing is set when the last param was added by TrailingParam.
	trailing bool
}

// NewBuilder starts a builder for the given command.
func NewBuilder(command string) *Builder {
	return &Builder{command: command}
}

// Tag appends a message tag. Tags render in the order they were added.
func (b *Builder) Tag(key, value string) *Builder {
	b.tags = append(b.tags, Tag{Key: key, Value: value, HasValue: true})
	return b
}

// CopyTags appends every tag already parsed out of rawTags verbatim
// (their values are re-escaped on render), used to preserve an
// originator's own tags on a relayed message.
func (b *Builder) CopyTags(rawTags string) *Builder {
	for _, t := range Tags(rawTags) {
		b.tags = append(b.tags, t)
	}
	return b
}

// Prefix sets the source prefix.
func (b *Builder) Prefix(prefix string) *Builder {
	b.prefix = prefix
	return b
}

// Param appends a regular (non-trailing) parameter.
func (b *Builder) Param(p string) *Builder {
	b.params = append(b.params, p)
	b.trailing = false
	return b
}

// TrailingParam appends the final, colon-prefixed parameter.
func (b *Builder) TrailingParam(p string) *Builder {
	b.params = append(b.params, p)
	b.trailing = true
	return b
}

// Build renders the line, including the trailing "\r\n". It returns the
// rendered line and the byte offset at which the tag block (and its
// separating space) ends -- equal to 0 if there were no tags.
//
// If the rendered body (excluding the tag block) would exceed
// MaxBodyLength, the last parameter is truncated until it fits, rather
// than producing an invalid (too-long) line.
func (b *Builder) Build() (line string, tagEnd int) {
	var tagBlock strings.Builder
	if len(b.tags) > 0 {
		tagBlock.WriteByte('@')
		for i, t := range b.tags {
			if i > 0 {
				tagBlock.WriteByte(';')
			}
			tagBlock.WriteString(t.Key)
			if t.HasValue {
				tagBlock.WriteByte('=')
				tagBlock.WriteString(escapeTag(t.Value))
			}
		}
		tagBlock.WriteByte(' ')
	}
	tagEnd = tagBlock.Len()

	body := b.buildBody()
	full := tagBlock.String() + body

	if over := len(full) - tagEnd - MaxBodyLength; over > 0 && len(b.params) > 0 {
		last := len(b.params) - 1
		if over >= len(b.params[last]) {
			b.params[last] = ""
		} else {
			b.params[last] = b.params[last][:len(b.params[last])-over]
		}
		body = b.buildBody()
		full = tagBlock.String() + body
	}

	return full, tagEnd
}

func (b *Builder) buildBody() string {
	var out strings.Builder
	if b.prefix != "" {
		out.WriteByte(':')
		out.WriteString(b.prefix)
		out.WriteByte(' ')
	}
	out.WriteString(b.command)
	for i, p := range b.params {
		out.WriteByte(' ')
		if i == len(b.params)-1 && (b.trailing || p == "" || strings.ContainsAny(p, ": ") || strings.HasPrefix(p, ":")) {
			out.WriteByte(':')
		}
		out.WriteString(p)
	}
	out.WriteString("\r\n")
	return out.String()
}
