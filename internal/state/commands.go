package state

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/horgh/cinder/internal/ircmsg"
	"github.com/horgh/cinder/internal/modes"
	"github.com/horgh/cinder/internal/replybuf"
)

// errCommandFailed is the generic "this command did not succeed"
// signal dispatch uses to double the quota charge, mirroring the
// grounding source's handle_message doubling failed commands' cost. It
// never reaches a client; the numeric reply already queued on rb is
// what they see.
var errCommandFailed = errors.New("state: command failed")

// dispatch routes one already-admitted command to its handler. Every
// handler is responsible for queuing its own replies on ctx.rb; the
// returned error only controls quota accounting.
func (n *Network) dispatch(command string, ctx *cmdCtx) error {
	switch command {
	case "PASS":
		return n.cmdPass(ctx)
	case "NICK":
		return n.cmdNick(ctx)
	case "USER":
		return n.cmdUser(ctx)
	case "CAP":
		return n.cmdCap(ctx)
	case "AUTHENTICATE":
		return n.cmdAuthenticate(ctx)
	case "SETNAME":
		return n.cmdSetName(ctx)

	case "JOIN":
		return n.cmdJoin(ctx)
	case "PART":
		return n.cmdPart(ctx)
	case "KICK":
		return n.cmdKick(ctx)
	case "MODE":
		return n.cmdMode(ctx)
	case "TOPIC":
		return n.cmdTopic(ctx)
	case "INVITE":
		return n.cmdInvite(ctx)

	case "PRIVMSG":
		return n.cmdMessage(ctx, "PRIVMSG")
	case "NOTICE":
		return n.cmdMessage(ctx, "NOTICE")
	case "TAGMSG":
		return n.cmdMessage(ctx, "TAGMSG")

	case "WHO":
		return n.cmdWho(ctx)
	case "WHOIS":
		return n.cmdWhois(ctx)
	case "NAMES":
		return n.cmdNames(ctx)
	case "LIST":
		return n.cmdList(ctx)
	case "LUSERS":
		n.sendLusers(ctx.id, ctx.rb)
		return nil
	case "MOTD":
		n.sendMotd(ctx.id, ctx.rb)
		return nil
	case "ADMIN":
		return n.cmdAdmin(ctx)
	case "INFO":
		return n.cmdInfo(ctx)
	case "TIME":
		return n.cmdTime(ctx)
	case "VERSION":
		return n.cmdVersion(ctx)

	case "AWAY":
		return n.cmdAway(ctx)
	case "OPER":
		return n.cmdOper(ctx)
	case "KILL":
		return n.cmdKill(ctx)
	case "REHASH":
		return n.cmdRehash(ctx)
	case "QUIT":
		return n.cmdQuit(ctx)
	case "PING":
		return n.cmdPing(ctx)
	case "PONG":
		return nil
	}
	return nil
}

// ---- Registration ----

func (n *Network) cmdPass(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	if ctx.param(0) == n.cfg.Password {
		c.SetPassOK()
		return nil
	}
	ctx.rb.Append(ctx.rb.Numeric(numPasswdMismatch).TrailingParam("Password incorrect"))
	return errCommandFailed
}

func (n *Network) cmdNick(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	nick := ctx.param(0)

	if !n.isValidNickname(nick) {
		ctx.rb.Append(ctx.rb.Numeric(numErroneousNickname).Param(nick).TrailingParam("Erroneous nickname"))
		return errCommandFailed
	}
	if existing, ok := n.nicks[fold(nick)]; ok && existing != ctx.id {
		ctx.rb.Append(ctx.rb.Numeric(numNicknameInUse).Param(nick).TrailingParam("Nickname is already in use"))
		return errCommandFailed
	}

	old := c.Nick
	wasRegistered := c.IsRegistered()

	if old != "" {
		delete(n.nicks, fold(old))
	}
	n.nicks[fold(nick)] = ctx.id
	c.SetNick(nick)
	ctx.rb.SetNick(nick)

	if wasRegistered {
		builder := ircmsg.NewBuilder("NICK").Prefix(old + "!~" + c.User + "@" + c.Host).Param(nick)
		n.broadcast(builder, n.channelRecipients(ctx.id), ctx.id)
	}
	return nil
}

func (n *Network) cmdUser(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	c.SetUser(ctx.param(0), ctx.param(3))
	return nil
}

func (n *Network) cmdCap(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	sub := strings.ToUpper(ctx.param(0))

	switch sub {
	case "LS":
		c.capBeginNegotiation()
		c.SetCapVersion(ctx.param(1))
		list := strings.Join(capNames, " ")
		if c.CapVersion == "302" && n.authProvider.IsAvailable() {
			list += " sasl=" + strings.Join(n.authProvider.Mechanisms(), ",")
		}
		ctx.rb.Append(ctx.rb.Message(n.cfg.Domain, "CAP").Param(c.DisplayNick()).Param("LS").TrailingParam(list))

	case "LIST":
		ctx.rb.Append(ctx.rb.Message(n.cfg.Domain, "CAP").Param(c.DisplayNick()).Param("LIST").TrailingParam(activeCapString(c)))

	case "REQ":
		c.capBeginNegotiation()
		requested := ctx.param(1)
		if !capsAreSupported(stripNegation(requested)) {
			ctx.rb.Append(ctx.rb.Message(n.cfg.Domain, "CAP").Param(c.DisplayNick()).Param("NAK").TrailingParam(requested))
			return errCommandFailed
		}
		for _, tok := range splitSpace(requested) {
			value := true
			name := tok
			if strings.HasPrefix(tok, "-") {
				value = false
				name = tok[1:]
			}
			applyCapRequest(&c.Caps, name, value)
		}
		ctx.rb.Append(ctx.rb.Message(n.cfg.Domain, "CAP").Param(c.DisplayNick()).Param("ACK").TrailingParam(requested))

	case "END":
		c.EndCapNegotiation()

	default:
		ctx.rb.Append(ctx.rb.Numeric(numInvalidCapCmd).Param(sub).TrailingParam("Invalid CAP subcommand"))
		return errCommandFailed
	}
	return nil
}

func stripNegation(caps string) string {
	toks := splitSpace(caps)
	for i, t := range toks {
		toks[i] = strings.TrimPrefix(t, "-")
	}
	return strings.Join(toks, " ")
}

func activeCapString(c *Client) string {
	var active []string
	for _, name := range capNames {
		fn, ok := capToken[name]
		if !ok {
			continue
		}
		probe := Capabilities{}
		fn(&probe, true)
		if capIsSet(c.Caps, probe) {
			active = append(active, name)
		}
	}
	return strings.Join(active, " ")
}

// capIsSet reports whether the single flag that probe has set is also
// set in caps, used to turn a capToken setter back into a query.
func capIsSet(caps, probe Capabilities) bool {
	switch {
	case probe.AccountNotify:
		return caps.AccountNotify
	case probe.AwayNotify:
		return caps.AwayNotify
	case probe.Batch:
		return caps.Batch
	case probe.CapNotify:
		return caps.CapNotify
	case probe.EchoMessage:
		return caps.EchoMessage
	case probe.InviteNotify:
		return caps.InviteNotify
	case probe.LabeledResponse:
		return caps.LabeledResponse
	case probe.MessageTags:
		return caps.MessageTags
	case probe.MultiPrefix:
		return caps.MultiPrefix
	case probe.Sasl:
		return caps.Sasl
	case probe.ServerTime:
		return caps.ServerTime
	case probe.SetName:
		return caps.SetName
	case probe.UserhostInNames:
		return caps.UserhostInNames
	}
	return false
}

func (n *Network) cmdAuthenticate(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	arg := ctx.param(0)

	if c.IsAuthenticated() {
		ctx.rb.Append(ctx.rb.Numeric(numSaslAlready).TrailingParam("You have already authenticated"))
		return errCommandFailed
	}

	if c.sasl.session == nil {
		if arg == "*" {
			return errCommandFailed
		}
		session, err := n.authProvider.StartAuth(arg)
		if err != nil {
			ctx.rb.Append(ctx.rb.Numeric(numSaslFail).TrailingParam("SASL authentication failed"))
			return errCommandFailed
		}
		c.beginSASL(session)
		challenge, _, done, err := session.Next(nil)
		if err != nil {
			c.resetSASL()
			ctx.rb.Append(ctx.rb.Numeric(numSaslFail).TrailingParam("SASL authentication failed"))
			return errCommandFailed
		}
		n.sendAuthChallenge(ctx, challenge, done)
		return nil
	}

	if arg == "*" {
		c.resetSASL()
		ctx.rb.Append(ctx.rb.Numeric(numSaslAborted).TrailingParam("SASL authentication aborted"))
		return errCommandFailed
	}

	if len(arg) > 400 {
		c.resetSASL()
		ctx.rb.Append(ctx.rb.Numeric(numSaslTooLong).TrailingParam("SASL message too long"))
		return errCommandFailed
	}

	chunk := arg
	if chunk == "+" {
		chunk = ""
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		c.resetSASL()
		ctx.rb.Append(ctx.rb.Numeric(numSaslFail).TrailingParam("SASL authentication failed"))
		return errCommandFailed
	}
	c.sasl.buffer = append(c.sasl.buffer, decoded...)
	if len(arg) == 400 {
		// More chunks to come; IRCv3 SASL message splitting.
		return nil
	}

	challenge, account, done, err := c.sasl.session.Next(c.sasl.buffer)
	if err != nil {
		c.resetSASL()
		ctx.rb.Append(ctx.rb.Numeric(numSaslFail).TrailingParam("SASL authentication failed"))
		return errCommandFailed
	}
	if !done {
		n.sendAuthChallenge(ctx, challenge, done)
		return nil
	}

	c.logIn(account)
	ctx.rb.Append(ctx.rb.Numeric(numLoggedIn).Param(c.FullName()).Param(account).
		TrailingParam("You are now logged in as " + account))
	ctx.rb.Append(ctx.rb.Numeric(numSaslSuccess).TrailingParam("SASL authentication successful"))

	if c.Caps.AccountNotify {
		builder := ircmsg.NewBuilder("ACCOUNT").Prefix(c.FullName()).Param(account)
		n.broadcast(builder, n.channelRecipients(ctx.id), ctx.id)
	}
	return nil
}

func (n *Network) sendAuthChallenge(ctx *cmdCtx, challenge []byte, done bool) {
	text := "+"
	if len(challenge) > 0 {
		text = base64.StdEncoding.EncodeToString(challenge)
	}
	ctx.rb.Append(ctx.rb.Raw("AUTHENTICATE").TrailingParam(text))
}

func (n *Network) cmdSetName(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	realname := ctx.param(0)
	limit := n.limitOr(n.cfg.Limits.Realname, 64)
	if realname == "" || len(realname) > limit {
		ctx.rb.Append(ctx.rb.Raw("FAIL").Param("SETNAME").Param("INVALID_REALNAME").TrailingParam("Realname is invalid"))
		return errCommandFailed
	}
	c.RealName = realname
	builder := ircmsg.NewBuilder("SETNAME").Prefix(c.FullName()).TrailingParam(realname)
	n.broadcast(builder, n.channelRecipients(ctx.id), ctx.id)
	return nil
}

// ---- Channel membership and modes ----

func (n *Network) cmdJoin(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	names := strings.Split(ctx.param(0), ",")
	var keys []string
	if ctx.param(1) != "" {
		keys = strings.Split(ctx.param(1), ",")
	}

	failed := false
	for i, name := range names {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		if !isValidChannelName(name) {
			ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(name).TrailingParam("No such channel"))
			failed = true
			continue
		}

		ch, exists := n.findChannel(name)
		if exists {
			mask := c.FullName()
			switch {
			case ch.Key != "" && ch.Key != key:
				ctx.rb.Append(ctx.rb.Numeric(numBadChannelKey).Param(name).TrailingParam("Cannot join channel (+k)"))
				failed = true
				continue
			case ch.IsBanned(mask):
				ctx.rb.Append(ctx.rb.Numeric(numBannedFromChan).Param(name).TrailingParam("Cannot join channel (+b)"))
				failed = true
				continue
			case !ch.IsInvited(mask):
				ctx.rb.Append(ctx.rb.Numeric(numInviteOnlyChan).Param(name).TrailingParam("Cannot join channel (+i)"))
				failed = true
				continue
			case ch.UserLimit != nil && len(ch.Members) >= *ch.UserLimit:
				ctx.rb.Append(ctx.rb.Numeric(numChannelIsFull).Param(name).TrailingParam("Cannot join channel (+l)"))
				failed = true
				continue
			}
		} else {
			ch = NewChannel(fold(name), n.cfg.DefaultChannelModes)
			ch.Name = name
			n.channels[fold(name)] = ch
		}

		ch.AddMember(ctx.id)

		builder := ircmsg.NewBuilder("JOIN").Prefix(c.FullName()).Param(name)
		n.broadcast(builder, func(id int, _ *Client) bool { _, ok := ch.Members[id]; return ok }, ctx.id)

		topicLine := replybuf.New(n.cfg.Domain, c.DisplayNick(), "")
		n.sendTopic(ctx.id, ch, topicLine)
		n.sendTo(c, topicLine.Flush())

		namesLine := replybuf.New(n.cfg.Domain, c.DisplayNick(), "")
		n.sendNames(ctx.id, ch, namesLine)
		n.sendTo(c, namesLine.Flush())
	}

	if failed {
		return errCommandFailed
	}
	return nil
}

func (n *Network) cmdPart(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	names := strings.Split(ctx.param(0), ",")
	reason := ctx.param(1)
	if reason == "" {
		reason = c.Nick
	}

	failed := false
	for _, name := range names {
		ch, ok := n.findChannel(name)
		if !ok {
			ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(name).TrailingParam("No such channel"))
			failed = true
			continue
		}
		if _, member := ch.Members[ctx.id]; !member {
			ctx.rb.Append(ctx.rb.Numeric(numNotOnChannel).Param(name).TrailingParam("You're not on that channel"))
			failed = true
			continue
		}
		builder := ircmsg.NewBuilder("PART").Prefix(c.FullName()).Param(name).TrailingParam(reason)
		n.broadcast(builder, func(id int, _ *Client) bool { _, ok := ch.Members[id]; return ok }, ctx.id)
		ch.RemoveMember(ctx.id)
		if len(ch.Members) == 0 {
			delete(n.channels, fold(ch.Name))
		}
	}
	if failed {
		return errCommandFailed
	}
	return nil
}

func (n *Network) cmdKick(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	chanName := ctx.param(0)
	targetNick := ctx.param(1)
	reason := ctx.param(2)
	if reason == "" {
		reason = c.Nick
	}

	ch, ok := n.findChannel(chanName)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(chanName).TrailingParam("No such channel"))
		return errCommandFailed
	}
	kicker := ch.Members[ctx.id]
	if kicker == nil {
		ctx.rb.Append(ctx.rb.Numeric(numNotOnChannel).Param(chanName).TrailingParam("You're not on that channel"))
		return errCommandFailed
	}
	if !kicker.Operator {
		ctx.rb.Append(ctx.rb.Numeric(numChanOpPrivsNeeded).Param(chanName).TrailingParam("You're not channel operator"))
		return errCommandFailed
	}
	target, ok := n.findNick(targetNick)
	if !ok || ch.Members[target.ID] == nil {
		ctx.rb.Append(ctx.rb.Numeric(numUserNotInChannel).Param(targetNick).Param(chanName).TrailingParam("They aren't on that channel"))
		return errCommandFailed
	}

	builder := ircmsg.NewBuilder("KICK").Prefix(c.FullName()).Param(chanName).Param(targetNick).TrailingParam(reason)
	n.broadcast(builder, func(id int, _ *Client) bool { _, ok := ch.Members[id]; return ok || id == target.ID }, ctx.id)
	ch.RemoveMember(target.ID)
	if len(ch.Members) == 0 {
		delete(n.channels, fold(ch.Name))
	}
	return nil
}

func (n *Network) cmdMode(ctx *cmdCtx) error {
	target := ctx.param(0)
	c := n.clients.get(ctx.id)

	if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
		return n.cmdUserMode(ctx, target, c)
	}

	ch, ok := n.findChannel(target)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(target).TrailingParam("No such channel"))
		return errCommandFailed
	}

	if len(ctx.params) == 1 {
		modeStr, params := ch.ModeString(true)
		b := ctx.rb.Numeric(numChannelModeIs).Param(target).Param(modeStr)
		for _, p := range params {
			b.Param(p)
		}
		ctx.rb.Append(b)
		return nil
	}

	member := ch.Members[ctx.id]
	requestsChange := strings.ContainsAny(ctx.param(1), "+-")
	if requestsChange && (member == nil || !member.Operator) {
		ctx.rb.Append(ctx.rb.Numeric(numChanOpPrivsNeeded).Param(target).TrailingParam("You're not channel operator"))
		return errCommandFailed
	}

	changes, decodeErrs := modes.ParseChannelModes(ctx.param(1), ctx.params[2:])
	for _, de := range decodeErrs {
		n.replyModeError(ctx, target, de)
	}

	var applied []modes.ChannelChange
	failed := len(decodeErrs) > 0
	for _, change := range changes {
		if change.IsQuery {
			n.replyModeQuery(ctx, ch, change)
			continue
		}
		ok, err := ch.ApplyModeChange(change, n.nickOfFunc())
		if err != nil {
			n.replyModeApplyError(ctx, target, change, err)
			failed = true
			continue
		}
		if ok {
			applied = append(applied, change)
		}
	}

	if len(applied) > 0 {
		modeStr, params := renderChanges(applied)
		builder := ctx.rb.Message(c.FullName(), "MODE").Param(target).Param(modeStr)
		for _, p := range params {
			builder.Param(p)
		}
		n.broadcast(builder, func(id int, _ *Client) bool { _, ok := ch.Members[id]; return ok }, ctx.id)
	}

	if failed {
		return errCommandFailed
	}
	return nil
}

func renderChanges(changes []modes.ChannelChange) (string, []string) {
	var plus, minus strings.Builder
	var params []string
	for _, c := range changes {
		letter := channelModeLetter(c.Kind)
		if letter == 0 {
			continue
		}
		if c.Value {
			plus.WriteByte(letter)
		} else {
			minus.WriteByte(letter)
		}
		if c.Param != "" {
			params = append(params, c.Param)
		}
	}
	var b strings.Builder
	if plus.Len() > 0 {
		b.WriteByte('+')
		b.WriteString(plus.String())
	}
	if minus.Len() > 0 {
		b.WriteByte('-')
		b.WriteString(minus.String())
	}
	return b.String(), params
}

func channelModeLetter(kind modes.ChannelModeKind) byte {
	switch kind {
	case modes.Anonymous:
		return 'a'
	case modes.InviteOnly:
		return 'i'
	case modes.Moderated:
		return 'm'
	case modes.NoExternalMessages:
		return 'n'
	case modes.Quiet:
		return 'q'
	case modes.Private:
		return 'p'
	case modes.Secret:
		return 's'
	case modes.TopicRestricted:
		return 't'
	case modes.Key:
		return 'k'
	case modes.UserLimit:
		return 'l'
	case modes.Ban:
		return 'b'
	case modes.Exception:
		return 'e'
	case modes.Invitation:
		return 'I'
	case modes.Operator:
		return 'o'
	case modes.Voice:
		return 'v'
	}
	return 0
}

func (n *Network) replyModeError(ctx *cmdCtx, target string, e *modes.Error) {
	switch e.Kind {
	case modes.ErrUnknownMode:
		ctx.rb.Append(ctx.rb.Numeric(numUnknownMode).Param(string(e.Mode)).TrailingParam("is unknown mode char to me"))
	default:
		ctx.rb.Append(ctx.rb.Numeric(numNeedMoreParams).Param("MODE").TrailingParam("Not enough parameters"))
	}
}

func (n *Network) replyModeApplyError(ctx *cmdCtx, target string, c modes.ChannelChange, err error) {
	switch {
	case errors.Is(err, errKeySet):
		ctx.rb.Append(ctx.rb.Numeric(numKeySet).Param(target).TrailingParam("Channel key already set"))
	case errors.Is(err, errUserNotInChannel):
		ctx.rb.Append(ctx.rb.Numeric(numUserNotInChannel).Param(c.Param).Param(target).TrailingParam("They aren't on that channel"))
	}
}

func (n *Network) replyModeQuery(ctx *cmdCtx, ch *Channel, c modes.ChannelChange) {
	switch c.Kind {
	case modes.Ban:
		for mask := range ch.BanMask {
			ctx.rb.Append(ctx.rb.Numeric(numBanList).Param(ch.Name).Param(mask))
		}
		ctx.rb.Append(ctx.rb.Numeric(numEndOfBanList).Param(ch.Name).TrailingParam("End of channel ban list"))
	case modes.Exception:
		for mask := range ch.ExceptionMask {
			ctx.rb.Append(ctx.rb.Numeric(numExceptList).Param(ch.Name).Param(mask))
		}
		ctx.rb.Append(ctx.rb.Numeric(numEndOfExceptList).Param(ch.Name).TrailingParam("End of channel exception list"))
	case modes.Invitation:
		for mask := range ch.InvitationMask {
			ctx.rb.Append(ctx.rb.Numeric(numInviteList).Param(ch.Name).Param(mask))
		}
		ctx.rb.Append(ctx.rb.Numeric(numEndOfInviteList).Param(ch.Name).TrailingParam("End of channel invite list"))
	}
}

func (n *Network) cmdUserMode(ctx *cmdCtx, targetNick string, c *Client) error {
	if !strings.EqualFold(targetNick, c.Nick) {
		ctx.rb.Append(ctx.rb.Numeric(numUsersDontMatch).TrailingParam("Cannot change mode for other users"))
		return errCommandFailed
	}
	if len(ctx.params) == 1 {
		ctx.rb.Append(ctx.rb.Numeric(numUModeIs).Param(userModeString(c)))
		return nil
	}
	changes, errs := modes.ParseUserModes(ctx.param(1))
	for _, e := range errs {
		ctx.rb.Append(ctx.rb.Numeric(numUnknownMode).Param(string(e.Mode)).TrailingParam("is unknown mode char to me"))
	}
	for _, change := range changes {
		switch change.Mode {
		case modes.Invisible:
			c.Invisible = change.Value
		case modes.Wallops:
			c.Wallops = change.Value
		case modes.ServerNotices:
			c.ServerNotices = change.Value
		}
	}
	if len(errs) > 0 {
		return errCommandFailed
	}
	return nil
}

func userModeString(c *Client) string {
	b := []byte{'+'}
	if c.Operator {
		b = append(b, 'o')
	}
	if c.Invisible {
		b = append(b, 'i')
	}
	if c.Wallops {
		b = append(b, 'w')
	}
	if c.ServerNotices {
		b = append(b, 's')
	}
	return string(b)
}

func (n *Network) cmdTopic(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	name := ctx.param(0)
	ch, ok := n.findChannel(name)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(name).TrailingParam("No such channel"))
		return errCommandFailed
	}
	member := ch.Members[ctx.id]
	if member == nil {
		ctx.rb.Append(ctx.rb.Numeric(numNotOnChannel).Param(name).TrailingParam("You're not on that channel"))
		return errCommandFailed
	}

	if len(ctx.params) == 1 {
		n.sendTopic(ctx.id, ch, ctx.rb)
		return nil
	}

	if ch.TopicRestricted && !member.Operator {
		ctx.rb.Append(ctx.rb.Numeric(numChanOpPrivsNeeded).Param(name).TrailingParam("You're not channel operator"))
		return errCommandFailed
	}

	text := ctx.param(1)
	limit := n.limitOr(n.cfg.Limits.Topic, 390)
	if len(text) > limit {
		text = text[:limit]
	}
	ch.Topic = &Topic{Content: text, Who: c.FullName(), Time: topicTimestamp()}

	builder := ircmsg.NewBuilder("TOPIC").Prefix(c.FullName()).Param(name).TrailingParam(text)
	n.broadcast(builder, func(id int, _ *Client) bool { _, ok := ch.Members[id]; return ok }, ctx.id)
	return nil
}

func (n *Network) cmdInvite(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	targetNick := ctx.param(0)
	chanName := ctx.param(1)

	target, ok := n.findNick(targetNick)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchNick).Param(targetNick).TrailingParam("No such nick"))
		return errCommandFailed
	}
	ch, exists := n.findChannel(chanName)
	if exists {
		member := ch.Members[ctx.id]
		if member == nil {
			ctx.rb.Append(ctx.rb.Numeric(numNotOnChannel).Param(chanName).TrailingParam("You're not on that channel"))
			return errCommandFailed
		}
		if ch.InviteOnly && !member.Operator {
			ctx.rb.Append(ctx.rb.Numeric(numChanOpPrivsNeeded).Param(chanName).TrailingParam("You're not channel operator"))
			return errCommandFailed
		}
		ch.InvitationMask[target.FullName()] = true
	}

	ctx.rb.Append(ctx.rb.Numeric(numInviting).Param(targetNick).Param(chanName))
	builder := ircmsg.NewBuilder("INVITE").Prefix(c.FullName()).Param(targetNick).Param(chanName)
	lines := renderOne(builder)
	n.sendTo(target, lines)

	if exists {
		notif := ircmsg.NewBuilder("INVITE").Prefix(c.FullName()).Param(targetNick).Param(chanName)
		n.broadcast(notif, func(id int, rc *Client) bool {
			m, ok := ch.Members[id]
			return ok && id != ctx.id && m.Operator && rc.Caps.InviteNotify
		}, ctx.id)
	}
	return nil
}

// ---- Messaging ----

func (n *Network) cmdMessage(ctx *cmdCtx, command string) error {
	c := n.clients.get(ctx.id)
	target := ctx.param(0)
	text := ctx.param(1)

	msgid := newMessageID()
	ts := messageTime()

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch, ok := n.findChannel(target)
		if !ok {
			if command != "NOTICE" {
				ctx.rb.Append(ctx.rb.Numeric(numNoSuchChannel).Param(target).TrailingParam("No such channel"))
			}
			return errCommandFailed
		}
		if !ch.CanTalk(ctx.id) {
			if command != "NOTICE" {
				ctx.rb.Append(ctx.rb.Numeric(numCannotSendToChan).Param(target).TrailingParam("Cannot send to channel"))
			}
			return errCommandFailed
		}

		builder := ircmsg.NewBuilder(command)
		if command == "TAGMSG" {
			builder.CopyTags(ctx.clientTags)
		}
		builder.Tag("msgid", msgid).Tag("time", ts).Prefix(c.FullName()).Param(target)
		if command != "TAGMSG" {
			builder.TrailingParam(text)
		}
		n.broadcast(builder, func(id int, rc *Client) bool {
			if id == ctx.id {
				return rc.Caps.EchoMessage
			}
			_, member := ch.Members[id]
			return member
		}, ctx.id)
		return nil
	}

	target2, ok := n.findNick(target)
	if !ok {
		if command != "NOTICE" {
			ctx.rb.Append(ctx.rb.Numeric(numNoSuchNick).Param(target).TrailingParam("No such nick"))
		}
		return errCommandFailed
	}

	if command == "PRIVMSG" && target2.Away != "" {
		ctx.rb.Append(ctx.rb.Numeric(numAway).Param(target2.Nick).TrailingParam(target2.Away))
	}

	builder := ircmsg.NewBuilder(command)
	if command == "TAGMSG" {
		builder.CopyTags(ctx.clientTags)
	}
	builder.Tag("msgid", msgid).Tag("time", ts).Prefix(c.FullName()).Param(target2.Nick)
	if command != "TAGMSG" {
		builder.TrailingParam(text)
	}
	lines := renderOne(builder)
	n.sendTo(target2, lines)
	if c.Caps.EchoMessage {
		n.sendTo(c, lines)
	}
	return nil
}

func renderOne(b *ircmsg.Builder) []replybuf.Line {
	rb := replybuf.New("", "", "")
	rb.Append(b)
	return rb.Flush()
}

// broadcast renders builder once and delivers it to every client for
// which recipients reports true.
func (n *Network) broadcast(builder *ircmsg.Builder, recipients func(id int, c *Client) bool, fromID int) {
	lines := renderOne(builder)
	n.sendNotification(fromID, lines, recipients)
}

// ---- Informational ----

func (n *Network) cmdWho(ctx *cmdCtx) error {
	mask := ctx.param(0)
	if ch, ok := n.findChannel(mask); ok {
		for mid, m := range ch.Members {
			mc := n.clients.get(mid)
			if mc == nil {
				continue
			}
			flags := "H"
			if mc.Operator {
				flags += "*"
			}
			flags += m.AllSymbols()
			ctx.rb.Append(ctx.rb.Numeric(numWhoReply).Param(ch.Name).Param("~"+mc.User).Param(mc.Host).
				Param(n.cfg.Domain).Param(mc.Nick).Param(flags).TrailingParam("0 "+mc.RealName))
		}
	} else if mc, ok := n.findNick(mask); ok {
		visible := mc.ID == ctx.id || !mc.Invisible || n.channelRecipients(mc.ID)(ctx.id, mc)
		if visible {
			flags := "H"
			if mc.Operator {
				flags += "*"
			}
			ctx.rb.Append(ctx.rb.Numeric(numWhoReply).Param("*").Param("~"+mc.User).Param(mc.Host).
				Param(n.cfg.Domain).Param(mc.Nick).Param(flags).TrailingParam("0 "+mc.RealName))
		}
	}
	ctx.rb.Append(ctx.rb.Numeric(numEndOfWho).Param(mask).TrailingParam("End of /WHO list"))
	return nil
}

func (n *Network) cmdWhois(ctx *cmdCtx) error {
	nick := ctx.param(0)
	target, ok := n.findNick(nick)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchNick).Param(nick).TrailingParam("No such nick"))
		return errCommandFailed
	}

	ctx.rb.Append(ctx.rb.Numeric(numWhoisUser).Param(target.Nick).Param("~"+target.User).
		Param(target.Host).Param("*").TrailingParam(target.RealName))
	ctx.rb.Append(ctx.rb.Numeric(numWhoisServer).Param(target.Nick).Param(n.cfg.Domain).TrailingParam("cinder"))

	var chans []string
	for _, ch := range n.channels {
		if m, ok := ch.Members[target.ID]; ok {
			chans = append(chans, m.AllSymbols()+ch.Name)
		}
	}
	if len(chans) > 0 {
		ctx.rb.Append(ctx.rb.Numeric(numWhoisChannels).Param(target.Nick).TrailingParam(strings.Join(chans, " ")))
	}
	if target.Operator {
		ctx.rb.Append(ctx.rb.Numeric(numWhoisOperator).Param(target.Nick).TrailingParam("is an IRC operator"))
	}
	if target.Away != "" {
		ctx.rb.Append(ctx.rb.Numeric(numAway).Param(target.Nick).TrailingParam(target.Away))
	}
	ctx.rb.Append(ctx.rb.Numeric(numEndOfWhois).Param(target.Nick).TrailingParam("End of /WHOIS list"))
	return nil
}

func (n *Network) cmdNames(ctx *cmdCtx) error {
	if ctx.param(0) == "" {
		for _, ch := range n.channels {
			n.sendNames(ctx.id, ch, ctx.rb)
		}
		return nil
	}
	for _, name := range strings.Split(ctx.param(0), ",") {
		ch, ok := n.findChannel(name)
		if !ok {
			continue
		}
		n.sendNames(ctx.id, ch, ctx.rb)
	}
	return nil
}

func (n *Network) cmdList(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Numeric(numListStart).Param("Channel").TrailingParam("Users Name"))
	for _, ch := range n.channels {
		if ch.Secret {
			if _, member := ch.Members[ctx.id]; !member {
				continue
			}
		}
		topic := ""
		if ch.Topic != nil {
			topic = ch.Topic.Content
		}
		ctx.rb.Append(ctx.rb.Numeric(numList).Param(ch.Name).Param(itoa(len(ch.Members))).TrailingParam(topic))
	}
	ctx.rb.Append(ctx.rb.Numeric(numListEnd).TrailingParam("End of /LIST"))
	return nil
}

func (n *Network) cmdAdmin(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Numeric(numAdminMe).Param(n.cfg.Domain).TrailingParam("Administrative info about " + n.cfg.Domain))
	ctx.rb.Append(ctx.rb.Numeric(numAdminLoc1).TrailingParam(n.cfg.AdminLocation))
	ctx.rb.Append(ctx.rb.Numeric(numAdminLoc2).TrailingParam(n.cfg.AdminName))
	ctx.rb.Append(ctx.rb.Numeric(numAdminEmail).TrailingParam(n.cfg.AdminMail))
	return nil
}

func (n *Network) cmdInfo(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Numeric(numInfo).TrailingParam("cinder - an IRCv3 daemon"))
	ctx.rb.Append(ctx.rb.Numeric(numEndOfInfo).TrailingParam("End of /INFO list"))
	return nil
}

func (n *Network) cmdTime(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Numeric(numTime).Param(n.cfg.Domain).TrailingParam(messageTime()))
	return nil
}

func (n *Network) cmdVersion(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Numeric(numVersion).Param("cinder-1.0").Param(n.cfg.Domain).TrailingParam("https://github.com/horgh/cinder"))
	return nil
}

// ---- Session control ----

func (n *Network) cmdAway(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	msg := ctx.param(0)
	limit := n.limitOr(n.cfg.Limits.Away, 200)
	if len(msg) > limit {
		msg = msg[:limit]
	}
	c.Away = msg

	if msg == "" {
		ctx.rb.Append(ctx.rb.Numeric(numUnAway).TrailingParam("You are no longer marked as being away"))
	} else {
		ctx.rb.Append(ctx.rb.Numeric(numNowAway).TrailingParam("You have been marked as being away"))
	}

	builder := ircmsg.NewBuilder("AWAY").Prefix(c.FullName())
	if msg != "" {
		builder.TrailingParam(msg)
	}
	n.broadcast(builder, func(id int, rc *Client) bool {
		return rc.Caps.AwayNotify && n.channelRecipients(ctx.id)(id, rc)
	}, ctx.id)
	return nil
}

// bcryptMatches reports whether password hashes to hash. A configured
// oper with an empty hash never matches, rather than accepting any
// password.
func bcryptMatches(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// topicTimestamp is the Unix time recorded against a freshly set topic.
func topicTimestamp() int64 {
	return time.Now().Unix()
}

func (n *Network) cmdOper(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	name := ctx.param(0)
	password := ctx.param(1)

	for _, op := range n.cfg.Opers {
		if op.Name == name && bcryptMatches(op.BcryptHash, password) {
			c.Operator = true
			ctx.rb.Append(ctx.rb.Numeric(numYoureOper).TrailingParam("You are now an IRC operator"))
			return nil
		}
	}
	ctx.rb.Append(ctx.rb.Numeric(numNoOperHost).TrailingParam("No O-lines for your host"))
	return errCommandFailed
}

func (n *Network) cmdKill(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	if !c.Operator {
		ctx.rb.Append(ctx.rb.Numeric(numNoPrivileges).TrailingParam("Permission Denied- You're not an IRC operator"))
		return errCommandFailed
	}
	targetNick := ctx.param(0)
	reason := ctx.param(1)
	target, ok := n.findNick(targetNick)
	if !ok {
		ctx.rb.Append(ctx.rb.Numeric(numNoSuchNick).Param(targetNick).TrailingParam("No such nick"))
		return errCommandFailed
	}
	n.removeClient(target.ID, "Killed ("+c.Nick+" ("+reason+"))")
	return nil
}

func (n *Network) cmdRehash(ctx *cmdCtx) error {
	c := n.clients.get(ctx.id)
	if !c.Operator {
		ctx.rb.Append(ctx.rb.Numeric(numNoPrivileges).TrailingParam("Permission Denied- You're not an IRC operator"))
		return errCommandFailed
	}
	ctx.rb.Append(ctx.rb.Numeric(numRehashing).Param("cinder.conf").TrailingParam("Rehashing"))
	return nil
}

func (n *Network) cmdQuit(ctx *cmdCtx) error {
	reason := ctx.param(0)
	if reason == "" {
		reason = "Client quit"
	}
	n.removeClient(ctx.id, reason)
	return nil
}

func (n *Network) cmdPing(ctx *cmdCtx) error {
	ctx.rb.Append(ctx.rb.Raw("PONG").Param(n.cfg.Domain).TrailingParam(ctx.param(0)))
	return nil
}
