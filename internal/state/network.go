// Package state holds the shared, single-locked network state of the
// server: clients, nicknames, channels, and the command dispatcher
// that keeps them consistent. Grounded on
// original_source/src/state/{mod,ircv3}.rs for the dispatch/broadcast
// semantics, and on the teacher's (horgh/catbox) map-of-clients +
// single-server-goroutine shape for the Go idiom.
package state

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/horgh/cinder/internal/auth"
	"github.com/horgh/cinder/internal/ircmsg"
	"github.com/horgh/cinder/internal/replybuf"
)

// ErrClientGone is returned by HandleMessage when id no longer names a
// connected client: either it was removed between the I/O layer
// reading the line and calling in, or the command itself removed it
// (QUIT, or a KILL of oneself).
var ErrClientGone = errors.New("state: client is gone")

// OperConfig is one configured operator credential: Name is the OPER
// username, BcryptHash the hash of its password.
type OperConfig struct {
	Name       string
	BcryptHash string
}

// Limits bounds the length, in characters, of various user-supplied
// strings.
type Limits struct {
	Away     int
	Channel  int
	Kick     int
	Realname int
	Nick     int
	Topic    int
	User     int
}

// Config is the mutable configuration surface the core consumes.
// Loading it from disk, and reading the MOTD file into MOTD, are the
// I/O layer's job (internal/config, cmd/cinderd).
type Config struct {
	Domain string

	AdminName     string
	AdminLocation string
	AdminMail     string

	MOTD string // text, not a path; "" means ERR_NOMOTD

	Password string // "" means no global password required

	DefaultChannelModes string

	Opers []OperConfig

	Limits Limits

	LoginTimeoutMS int
}

// Network is the shared state of one IRC network: the global map of
// clients and channels, and the command dispatcher. All mutating
// operations lock internally; callers never need their own mutex.
// Grounded on original_source/src/state/mod.rs's StateInner, wrapped
// the way the Rust source wraps it in an Arc<Mutex<_>> -- here a plain
// embedded sync.Mutex, since Go gives value semantics for free.
type Network struct {
	mu sync.Mutex

	cfg Config

	clients  slab
	nicks    map[string]int      // fold(nick) -> client id
	channels map[string]*Channel // fold(name) -> channel

	createdAt string

	authProvider auth.Provider

	quotas map[int]*quota
}

// NewNetwork creates an empty network from the given configuration and
// SASL backend.
func NewNetwork(cfg Config, authProvider auth.Provider) *Network {
	if authProvider == nil {
		authProvider = auth.Dummy{}
	}
	return &Network{
		cfg:          cfg,
		nicks:        map[string]int{},
		channels:     map[string]*Channel{},
		createdAt:    time.Now().UTC().Format(time.RFC1123),
		authProvider: authProvider,
		quotas:       map[int]*quota{},
	}
}

// Rehash atomically swaps the mutable configuration and SASL backend.
// No client is evicted.
func (n *Network) Rehash(cfg Config, authProvider auth.Provider) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg = cfg
	if authProvider != nil {
		n.authProvider = authProvider
	}
}

// LoginTimeout returns the registration timeout, for the surrounding
// collaborator's timer.
func (n *Network) LoginTimeout() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return time.Duration(n.cfg.LoginTimeoutMS) * time.Millisecond
}

// PeerJoined registers a new connection and returns its id. The
// connection has no network visibility (no nick, not in any channel)
// until it registers.
func (n *Network) PeerJoined(host string, sink Sink) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := NewClient(0, host, sink, n.cfg.Password != "")
	id := n.clients.insert(c)
	c.ID = id
	n.quotas[id] = newQuota(2, 20)
	return id
}

// PeerQuit removes id from the network. If ioErr is non-nil, its
// message becomes both the QUIT reason broadcast to peers and the
// ERROR line sent to the quitter.
func (n *Network) PeerQuit(id int, ioErr error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	reason := "Client quit"
	if ioErr != nil {
		reason = ioErr.Error()
	}
	n.removeClient(id, reason)
}

// CheckIdleClients sweeps every connected client: registered clients
// idle longer than pingEvery are sent a PING, and any client (idle
// registered or still registering) idle longer than timeoutAfter is
// disconnected with a ping-timeout QUIT. Grounded on horgh-catbox's
// checkAndPingClients (ircd.go), called by the surrounding
// collaborator's alarm ticker instead of a channel-based wakeup.
func (n *Network) CheckIdleClients(pingEvery, timeoutAfter time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	var timedOut []int

	n.clients.each(func(id int, c *Client) {
		idle := now.Sub(c.LastActivity)
		if idle > timeoutAfter {
			timedOut = append(timedOut, id)
			return
		}
		if c.IsRegistered() && idle > pingEvery {
			rb := replybuf.New(n.cfg.Domain, c.DisplayNick(), "")
			rb.Append(rb.Raw("PING").Param(n.cfg.Domain))
			n.sendTo(c, rb.Flush())
		}
	})

	for _, id := range timedOut {
		n.removeClient(id, "Ping timeout")
	}
}

// RemoveIfUnregistered drops id if it never completed registration,
// for the login-timeout collaborator.
func (n *Network) RemoveIfUnregistered(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := n.clients.get(id)
	if c == nil || c.IsRegistered() {
		return
	}
	if c.Nick != "" {
		delete(n.nicks, fold(c.Nick))
	}
	n.clients.remove(id)
	delete(n.quotas, id)
}

// SweepLoginTimeouts drops every still-unregistered client whose last
// inbound line is older than the configured login timeout, for the
// surrounding collaborator's periodic call. The window is measured from
// LastActivity, not from connection time: an unregistered client that
// keeps sending lines is not dropped by this sweep.
func (n *Network) SweepLoginTimeouts() {
	n.mu.Lock()
	timeout := time.Duration(n.cfg.LoginTimeoutMS) * time.Millisecond
	now := time.Now()
	var stale []int
	n.clients.each(func(id int, c *Client) {
		if !c.IsRegistered() && now.Sub(c.LastActivity) > timeout {
			stale = append(stale, id)
		}
	})
	n.mu.Unlock()

	for _, id := range stale {
		n.RemoveIfUnregistered(id)
	}
}

// removeClient does the cleanup shared by PeerQuit and the QUIT
// handler: drop from every channel, broadcast QUIT to every peer that
// shared one, garbage-collect emptied channels, send ERROR to the
// quitter, and unbind its nick. Grounded on
// original_source/src/state/mod.rs's remove_client.
func (n *Network) removeClient(id int, reason string) {
	c := n.clients.get(id)
	if c == nil {
		return
	}

	quitLine := replybuf.New(n.cfg.Domain, c.DisplayNick(), "")
	quitLine.Append(quitLine.Message(c.FullName(), "QUIT").TrailingParam(reason))
	sharesChannel := n.channelRecipients(id)
	n.sendNotification(id, quitLine.Flush(), func(rid int, rc *Client) bool {
		return rid != id && sharesChannel(rid, rc)
	})

	errLine := replybuf.New(n.cfg.Domain, c.DisplayNick(), "")
	errLine.Append(errLine.Raw("ERROR").TrailingParam(reason))
	for _, l := range errLine.Flush() {
		c.Send(l.Text)
	}

	for name, ch := range n.channels {
		ch.RemoveMember(id)
		if len(ch.Members) == 0 {
			delete(n.channels, name)
		}
	}

	if c.Nick != "" {
		delete(n.nicks, fold(c.Nick))
	}
	n.clients.remove(id)
	delete(n.quotas, id)
}

// HandleMessage is the single entry point for an inbound line from a
// registered or registering client. It returns the number of quota
// points consumed; the surrounding I/O layer decides what to do with
// that (leaky-bucket back-pressure). Grounded step-for-step on
// original_source/src/state/mod.rs's handle_message.
func (n *Network) HandleMessage(id int, msg ircmsg.Message) (points uint32, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := n.clients.get(id)
	if c == nil {
		return 0, ErrClientGone
	}
	c.UpdateActivity()

	label := ""
	if c.Caps.LabeledResponse {
		label, _ = ircmsg.TagValue(msg.RawTags, "label")
	}
	rb := replybuf.New(n.cfg.Domain, c.DisplayNick(), label)

	if ircmsg.TagsTooLong(msg.RawTags) {
		rb.Append(rb.Numeric(numInputTooLong).TrailingParam("Input line too long"))
		n.flush(id, rb)
		return n.chargeQuota(id, 3), nil
	}

	command := msg.Command
	if command == "" {
		n.replyUnknownOrNotRegistered(rb, c, "")
		n.flush(id, rb)
		return n.chargeQuota(id, 1), nil
	}

	if !isCapableOf(c, command) {
		n.replyUnknownOrNotRegistered(rb, c, command)
		n.flush(id, rb)
		return n.chargeQuota(id, cost(command)), nil
	}

	if !checkArity(rb, command, msg.Params) {
		n.flush(id, rb)
		return n.chargeQuota(id, 1), nil
	}

	if !c.CanIssueCommand(command) {
		if c.IsRegistered() {
			rb.Append(rb.Numeric(numAlreadyRegistered).TrailingParam("You may not reregister"))
		} else {
			rb.Append(rb.Numeric(numNotRegistered).TrailingParam("You have not registered"))
		}
		n.flush(id, rb)
		return n.chargeQuota(id, cost(command)*2), nil
	}

	wasRegistered := c.IsRegistered()

	ctx := &cmdCtx{id: id, rb: rb, clientTags: msg.RawTags, params: msg.Params}
	handlerErr := n.dispatch(command, ctx)

	if n.clients.get(id) == nil {
		return 0, ErrClientGone
	}

	used := cost(command)
	if handlerErr != nil {
		used *= 2
	} else if !wasRegistered && c.IsRegistered() {
		n.sendWelcome(id, rb)
	}

	n.flush(id, rb)
	return n.chargeQuota(id, used), nil
}

// chargeQuota runs points through id's per-client rate.Limiter
// (Limiter.AllowN), per SPEC_FULL.md §4.4: the limiter's admission
// decision is never used to reject a command here (the core "does not
// sleep" and only the I/O layer acts on back-pressure), but every
// charged point still has to pass through AllowN so the bucket's state
// reflects the client's actual usage for whatever the caller chooses
// to do with it. Returns points unchanged.
func (n *Network) chargeQuota(id int, points uint32) uint32 {
	if q, ok := n.quotas[id]; ok {
		q.allow(points)
	}
	return points
}

func (n *Network) flush(id int, rb *replybuf.Buffer) {
	c := n.clients.get(id)
	if c == nil {
		return
	}
	for _, line := range rb.Flush() {
		if c.Caps.HasMessageTags() {
			c.Send(line.Text)
		} else {
			c.Send(line.Text[line.TagEnd:])
		}
	}
}

// sendTo delivers already rendered lines to recipient c, with or
// without their tag block per c's own capabilities: c may have
// different message-tags capability than the client that triggered
// the send.
func (n *Network) sendTo(c *Client, lines []replybuf.Line) {
	for _, l := range lines {
		if c.Caps.HasMessageTags() {
			c.Send(l.Text)
		} else {
			c.Send(l.Text[l.TagEnd:])
		}
	}
}

func (n *Network) replyUnknownOrNotRegistered(rb *replybuf.Buffer, c *Client, command string) {
	if c.IsRegistered() {
		b := rb.Numeric(numUnknownCommand)
		if command != "" {
			b.Param(command)
		}
		rb.Append(b.TrailingParam("Unknown command"))
	} else {
		rb.Append(rb.Numeric(numNotRegistered).TrailingParam("You have not registered"))
	}
}

// isCapableOf reports whether c's negotiated capabilities allow it to
// issue command at all (distinct from whether it's *registered*
// enough to -- that's CanIssueCommand).
func isCapableOf(c *Client, command string) bool {
	switch command {
	case "TAGMSG":
		return c.Caps.MessageTags
	case "SETNAME":
		return c.Caps.SetName
	case "AUTHENTICATE":
		return c.Caps.Sasl
	default:
		return true
	}
}

// minParams is the generic arity table; NICK/WHOIS and
// PRIVMSG/NOTICE/TAGMSG get specialized replies instead (see
// checkArity).
var minParams = map[string]int{
	"USER": 4, "PASS": 1, "JOIN": 1, "PART": 1, "MODE": 1, "KICK": 2,
	"TOPIC": 1, "INVITE": 2, "CAP": 1, "AUTHENTICATE": 1, "SETNAME": 1,
	"OPER": 2, "KILL": 2, "PING": 1, "WHOIS": 1,
}

func checkArity(rb *replybuf.Buffer, command string, params []string) bool {
	num := len(params)
	switch command {
	case "NICK", "WHOIS":
		if num == 0 {
			rb.Append(rb.Numeric(numNoNicknameGiven).TrailingParam("No nickname given"))
			return false
		}
	case "PRIVMSG", "NOTICE", "TAGMSG":
		if num == 0 {
			rb.Append(rb.Numeric(numNoRecipient).TrailingParam("No recipient given"))
			return false
		}
		if num == 1 && command != "TAGMSG" {
			rb.Append(rb.Numeric(numNoTextToSend).TrailingParam("No text to send"))
			return false
		}
	default:
		if need, ok := minParams[command]; ok && num < need {
			rb.Append(rb.Numeric(numNeedMoreParams).Param(command).TrailingParam("Not enough parameters"))
			return false
		}
	}
	return true
}

// cmdCtx bundles the per-invocation context a handler needs: the
// caller's id, its staged reply buffer, the raw inbound tags (for
// tagged-message passthrough), and the command's parameters.
type cmdCtx struct {
	id         int
	rb         *replybuf.Buffer
	clientTags string
	params     []string
}

func (ctx *cmdCtx) param(i int) string {
	if i < 0 || i >= len(ctx.params) {
		return ""
	}
	return ctx.params[i]
}

// newMessageID synthesizes the fresh msgid tag attached to every
// relayed PRIVMSG/NOTICE/TAGMSG.
func newMessageID() string {
	return uuid.New().String()
}

// messageTime renders the server-time tag value: ISO-8601 UTC with
// millisecond precision, per spec.md's tagged-message requirement.
func messageTime() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// findChannel looks up a channel by name, case-folded.
func (n *Network) findChannel(name string) (*Channel, bool) {
	ch, ok := n.channels[fold(name)]
	return ch, ok
}

// findNick looks up a client by nick, case-folded.
func (n *Network) findNick(nick string) (*Client, bool) {
	id, ok := n.nicks[fold(nick)]
	if !ok {
		return nil, false
	}
	return n.clients.get(id), true
}

// nickOfFunc builds the id->nick resolver ApplyModeChange needs.
func (n *Network) nickOfFunc() func(int) string {
	return func(id int) string {
		if c := n.clients.get(id); c != nil {
			return c.Nick
		}
		return ""
	}
}

// sendNotification delivers lines to every client for which filter
// reports true, skipping fromID only when filter itself excludes it.
// fromID is kept for symmetry with callers that want to special-case
// the originator (e.g. echo-message); most callers simply always
// include it via filter.
func (n *Network) sendNotification(fromID int, lines []replybuf.Line, filter func(id int, c *Client) bool) {
	n.clients.each(func(id int, c *Client) {
		if !c.IsRegistered() && c.Nick == "" {
			return
		}
		if filter(id, c) {
			n.sendTo(c, lines)
		}
	})
}

// channelRecipients reports whether id is a member of any channel that
// target also belongs to, or is target itself -- the membership-union
// test used to fan PART/QUIT/NICK/notifications out to every peer who
// would plausibly care.
func (n *Network) channelRecipients(target int) func(id int, c *Client) bool {
	var shared []*Channel
	for _, ch := range n.channels {
		if _, ok := ch.Members[target]; ok {
			shared = append(shared, ch)
		}
	}
	return func(id int, c *Client) bool {
		if id == target {
			return true
		}
		for _, ch := range shared {
			if _, ok := ch.Members[id]; ok {
				return true
			}
		}
		return false
	}
}

func (n *Network) isValidNickname(nick string) bool {
	if nick == "" || len(nick) > n.limitOr(n.cfg.Limits.Nick, 9) {
		return false
	}
	first := nick[0]
	if !isLetter(first) && !isSpecial(first) {
		return false
	}
	for i := 1; i < len(nick); i++ {
		c := nick[i]
		if !isLetter(c) && !isDigit(c) && !isSpecial(c) && c != '-' {
			return false
		}
	}
	return true
}

func (n *Network) limitOr(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpecial(c byte) bool {
	return strings.IndexByte("[]\\`_^{|}", c) != -1
}

func isValidChannelName(name string) bool {
	if len(name) < 2 || len(name) > 50 {
		return false
	}
	if name[0] != '#' && name[0] != '&' {
		return false
	}
	return strings.IndexAny(name, " ,\x07:") == -1
}

// sendISupport sends the two-line (at most) feature-advertisement
// suite, wrapped to stay well under the 512-byte line cap.
func (n *Network) sendISupport(id int, rb *replybuf.Buffer) {
	tokens := []string{
		"CASEMAPPING=ascii",
		"CHANTYPES=#&",
		"CHANMODES=beI,k,l,aimnqpst",
		"PREFIX=(ov)@+",
		"EXCEPTS=e",
		"INVEX=I",
		"NICKLEN=" + itoa(n.limitOr(n.cfg.Limits.Nick, 9)),
		"CHANNELLEN=50",
		"TOPICLEN=" + itoa(n.limitOr(n.cfg.Limits.Topic, 390)),
		"AWAYLEN=" + itoa(n.limitOr(n.cfg.Limits.Away, 200)),
		"KICKLEN=" + itoa(n.limitOr(n.cfg.Limits.Kick, 200)),
		"NAMELEN=" + itoa(n.limitOr(n.cfg.Limits.Realname, 50)),
		"MODES=4",
		"SAFELIST",
		"TARGMAX=NAMES:1,PRIVMSG:1,NOTICE:1,KICK:1,INVITE:1",
		"NETWORK=" + n.cfg.Domain,
	}
	const perLine = 12
	for start := 0; start < len(tokens); start += perLine {
		end := start + perLine
		if end > len(tokens) {
			end = len(tokens)
		}
		b := rb.Numeric(numISupport)
		for _, t := range tokens[start:end] {
			b.Param(t)
		}
		rb.Append(b.TrailingParam("are supported by this server"))
	}
}

func (n *Network) sendLusers(id int, rb *replybuf.Buffer) {
	total := n.clients.len()
	var opers, channels int
	n.clients.each(func(_ int, c *Client) {
		if c.Operator {
			opers++
		}
	})
	channels = len(n.channels)

	rb.Append(rb.Numeric(numLuserClient).TrailingParam(
		"There are " + itoa(total) + " users and 0 services on 1 server"))
	rb.Append(rb.Numeric(numLuserOp).Param(itoa(opers)).TrailingParam("operator(s) online"))
	rb.Append(rb.Numeric(numLuserUnknown).Param("0").TrailingParam("unknown connection(s)"))
	rb.Append(rb.Numeric(numLuserChannels).Param(itoa(channels)).TrailingParam("channels formed"))
	rb.Append(rb.Numeric(numLuserMe).TrailingParam("I have " + itoa(total) + " clients and 1 server"))
}

func (n *Network) sendMotd(id int, rb *replybuf.Buffer) {
	if n.cfg.MOTD == "" {
		rb.Append(rb.Numeric(numNoMotd).TrailingParam("MOTD File is missing"))
		return
	}
	rb.Append(rb.Numeric(numMotdStart).TrailingParam("- " + n.cfg.Domain + " Message of the day - "))
	for _, line := range strings.Split(n.cfg.MOTD, "\n") {
		rb.Append(rb.Numeric(numMotd).TrailingParam("- " + line))
	}
	rb.Append(rb.Numeric(numEndOfMotd).TrailingParam("End of MOTD command"))
}

func (n *Network) sendWelcome(id int, rb *replybuf.Buffer) {
	c := n.clients.get(id)
	if c == nil {
		return
	}
	rb.Append(rb.Numeric(numWelcome).TrailingParam(
		"Welcome home, " + c.FullName()))
	rb.Append(rb.Numeric(numYourHost).TrailingParam(
		"Your host is " + n.cfg.Domain + ", running version cinder-1.0"))
	rb.Append(rb.Numeric(numCreated).TrailingParam("This server was created " + n.createdAt))
	rb.Append(rb.Numeric(numMyInfo).Param(n.cfg.Domain).Param("cinder-1.0").Param("i").Param("aimnqpstkl"))
	n.sendISupport(id, rb)
	n.sendLusers(id, rb)
	n.sendMotd(id, rb)
}

func (n *Network) sendNames(id int, ch *Channel, rb *replybuf.Buffer) {
	c := n.clients.get(id)
	if c == nil {
		return
	}
	if ch.Secret {
		if _, isMember := ch.Members[id]; !isMember {
			rb.Append(rb.Numeric(numEndOfNames).Param(ch.Name).TrailingParam("End of /NAMES list"))
			return
		}
	}

	var nicks []string
	for mid, m := range ch.Members {
		mc := n.clients.get(mid)
		if mc == nil {
			continue
		}
		var prefix string
		if c.Caps.MultiPrefix {
			prefix = m.AllSymbols()
		} else if s := m.Symbol(); s != 0 {
			prefix = string(s)
		}
		name := mc.Nick
		if c.Caps.UserhostInNames {
			name = mc.Nick + "!~" + mc.User + "@" + mc.Host
		}
		nicks = append(nicks, prefix+name)
	}
	sort.Strings(nicks)

	const perLine = 50
	for start := 0; start < len(nicks); start += perLine {
		end := start + perLine
		if end > len(nicks) {
			end = len(nicks)
		}
		rb.Append(rb.Numeric(numNamReply).Param(ch.Symbol()).Param(ch.Name).
			TrailingParam(strings.Join(nicks[start:end], " ")))
	}
	rb.Append(rb.Numeric(numEndOfNames).Param(ch.Name).TrailingParam("End of /NAMES list"))
}

func (n *Network) sendTopic(id int, ch *Channel, rb *replybuf.Buffer) {
	if ch.Topic == nil {
		rb.Append(rb.Numeric(numNoTopic).Param(ch.Name).TrailingParam("No topic is set"))
		return
	}
	rb.Append(rb.Numeric(numTopic).Param(ch.Name).TrailingParam(ch.Topic.Content))
	rb.Append(rb.Numeric(numTopicWhoTime).Param(ch.Name).Param(ch.Topic.Who).Param(itoa64(ch.Topic.Time)))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func itoa64(n int64) string {
	return itoa(int(n))
}
