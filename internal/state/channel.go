package state

import (
	"errors"
	"strconv"

	"github.com/horgh/cinder/internal/modes"
)

// Mode-apply errors, surfaced by commands.go as the matching numeric
// reply (ERR_KEYSET, ERR_USERNOTINCHANNEL).
var (
	errKeySet          = errors.New("channel: key already set")
	errUserNotInChannel = errors.New("channel: user not in channel")
)

// MemberModes is a channel member's per-channel privileges: a small
// value type throughout, per spec's explicit resolution of the
// grounding source's copyable/non-copyable split.
type MemberModes struct {
	Creator  bool
	Operator bool
	Voice    bool
}

// Symbol returns the NAMES/WHO prefix character for these modes, or 0
// if none applies.
func (m MemberModes) Symbol() byte {
	switch {
	case m.Operator:
		return '@'
	case m.Voice:
		return '+'
	default:
		return 0
	}
}

// AllSymbols appends every applicable symbol, for multi-prefix
// clients, highest privilege first.
func (m MemberModes) AllSymbols() string {
	var out []byte
	if m.Operator {
		out = append(out, '@')
	}
	if m.Voice {
		out = append(out, '+')
	}
	return string(out)
}

// Topic is a channel's topic metadata.
type Topic struct {
	Content string
	Who     string
	Time    int64
}

// Channel is one channel's state, keyed in Network by fold(name).
// Grounded on original_source/src/channel.rs's Channel struct.
type Channel struct {
	Name string

	Members map[int]*MemberModes

	Topic *Topic

	UserLimit *int
	Key       string // "" means unset

	BanMask       map[string]bool
	ExceptionMask map[string]bool
	InvitationMask map[string]bool

	Anonymous          bool
	InviteOnly         bool
	Moderated          bool
	NoExternalMessages bool
	Quiet              bool
	Private            bool // grammar-only: 'p' decodes but applies as a no-op, so this is never set.
	Secret             bool
	TopicRestricted    bool
}

// NewChannel creates a channel and applies the configured default mode
// string to it, same order as original_source's Channel::new.
func NewChannel(name, defaultModes string) *Channel {
	ch := &Channel{
		Name:           name,
		Members:        map[int]*MemberModes{},
		BanMask:        map[string]bool{},
		ExceptionMask:  map[string]bool{},
		InvitationMask: map[string]bool{},
	}
	changes, _ := modes.ParseChannelModes(defaultModes, nil)
	for _, c := range changes {
		_, _ = ch.ApplyModeChange(c, func(int) string { return "" })
	}
	return ch
}

// AddMember adds id with creator+operator modes if it is the first
// member, default (no) modes otherwise.
func (ch *Channel) AddMember(id int) {
	if len(ch.Members) == 0 {
		ch.Members[id] = &MemberModes{Creator: true, Operator: true}
		return
	}
	ch.Members[id] = &MemberModes{}
}

// RemoveMember removes id, if present.
func (ch *Channel) RemoveMember(id int) {
	delete(ch.Members, id)
}

// IsBanned reports whether mask is banned and not excepted or invited.
func (ch *Channel) IsBanned(mask string) bool {
	return ch.BanMask[mask] && !ch.ExceptionMask[mask] && !ch.InvitationMask[mask]
}

// IsInvited reports whether the channel is open to mask: either it
// isn't invite-only, or mask is on the invitation mask.
func (ch *Channel) IsInvited(mask string) bool {
	return !ch.InviteOnly || ch.InvitationMask[mask]
}

// CanTalk reports whether id may send messages to the channel.
func (ch *Channel) CanTalk(id int) bool {
	if ch.Moderated {
		m, ok := ch.Members[id]
		return ok && (m.Voice || m.Operator)
	}
	_, isMember := ch.Members[id]
	return !ch.NoExternalMessages || isMember
}

// Symbol is the NAMES-reply channel-visibility symbol: "@" for secret
// channels, "=" otherwise, per original_source/src/channel.rs.
func (ch *Channel) Symbol() string {
	if ch.Secret {
		return "@"
	}
	return "="
}

// ModeString renders the current simple/valued boolean modes as
// "+xyz[ param...]", for MODE queries.
func (ch *Channel) ModeString(fullInfo bool) (modeStr string, params []string) {
	b := []byte{'+'}
	if ch.Anonymous {
		b = append(b, 'a')
	}
	if ch.InviteOnly {
		b = append(b, 'i')
	}
	if ch.Moderated {
		b = append(b, 'm')
	}
	if ch.NoExternalMessages {
		b = append(b, 'n')
	}
	if ch.Quiet {
		b = append(b, 'q')
	}
	if ch.Secret {
		b = append(b, 's')
	}
	if ch.TopicRestricted {
		b = append(b, 't')
	}
	if ch.UserLimit != nil {
		b = append(b, 'l')
	}
	if ch.Key != "" {
		b = append(b, 'k')
	}
	if fullInfo {
		if ch.UserLimit != nil {
			params = append(params, strconv.Itoa(*ch.UserLimit))
		}
		if ch.Key != "" {
			params = append(params, ch.Key)
		}
	}
	return string(b), params
}

// ApplyModeChange applies one decoded change, reporting whether it was
// effective (value actually differed from current state) and any user
// error. nickOf resolves a member id to its current nick, needed to
// match ChangeOperator/ChangeVoice's nickname parameter.
//
// Grounded line-for-line on original_source/src/channel.rs's
// apply_mode_change, with the spec-mandated fix: ChangeVoice sets
// Voice, not Operator (the grounding source's bug).
func (ch *Channel) ApplyModeChange(c modes.ChannelChange, nickOf func(int) string) (applied bool, err error) {
	switch c.Kind {
	case modes.Anonymous:
		applied = ch.Anonymous != c.Value
		ch.Anonymous = c.Value
	case modes.InviteOnly:
		applied = ch.InviteOnly != c.Value
		ch.InviteOnly = c.Value
	case modes.Moderated:
		applied = ch.Moderated != c.Value
		ch.Moderated = c.Value
	case modes.NoExternalMessages:
		applied = ch.NoExternalMessages != c.Value
		ch.NoExternalMessages = c.Value
	case modes.Quiet:
		applied = ch.Quiet != c.Value
		ch.Quiet = c.Value
	case modes.Private:
		// Grammar-recognized, never stored: always a no-op, matching
		// the grounding source's fallthrough.
	case modes.Secret:
		applied = ch.Secret != c.Value
		ch.Secret = c.Value
	case modes.TopicRestricted:
		applied = ch.TopicRestricted != c.Value
		ch.TopicRestricted = c.Value

	case modes.Key:
		if c.Value {
			if ch.Key != "" {
				return false, errKeySet
			}
			applied = true
			ch.Key = c.Param
		} else if ch.Key != "" && ch.Key == c.Param {
			applied = true
			ch.Key = ""
		}

	case modes.UserLimit:
		if c.Value {
			n, convErr := strconv.Atoi(c.Param)
			if convErr != nil {
				return false, nil
			}
			applied = ch.UserLimit == nil || *ch.UserLimit != n
			ch.UserLimit = &n
		} else {
			applied = ch.UserLimit != nil
			ch.UserLimit = nil
		}

	case modes.Ban:
		applied = setMask(ch.BanMask, c.Value, c.Param)
	case modes.Exception:
		applied = setMask(ch.ExceptionMask, c.Value, c.Param)
	case modes.Invitation:
		applied = setMask(ch.InvitationMask, c.Value, c.Param)

	case modes.Operator:
		return ch.setMember(c.Param, c.Value, nickOf, func(m *MemberModes, v bool) { m.Operator = v })

	case modes.Voice:
		return ch.setMember(c.Param, c.Value, nickOf, func(m *MemberModes, v bool) { m.Voice = v })
	}

	return applied, nil
}

func setMask(mask map[string]bool, add bool, param string) bool {
	if add {
		if mask[param] {
			return false
		}
		mask[param] = true
		return true
	}
	if !mask[param] {
		return false
	}
	delete(mask, param)
	return true
}

func (ch *Channel) setMember(nick string, value bool, nickOf func(int) string, set func(*MemberModes, bool)) (bool, error) {
	for id, m := range ch.Members {
		if nickOf(id) == nick {
			probe := *m
			set(&probe, value)
			applied := probe != *m
			set(m, value)
			return applied, nil
		}
	}
	return false, errUserNotInChannel
}
