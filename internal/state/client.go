package state

import (
	"time"

	"github.com/horgh/cinder/internal/auth"
)

// Sink is the outbound side of one client's connection: an unbounded
// queue owned by the I/O task that accepted it. Send must never block
// and must never be called again once the owner reports the client
// gone via PeerQuit. The state never reads from a Sink, only writes.
type Sink interface {
	Send(line string)
}

// Capabilities is the fixed set of IRCv3 tokens this server can
// negotiate. Booleans rather than a set type: the full enumeration is
// small and fixed, so a struct reads directly off the wire grammar
// without an intermediate map.
type Capabilities struct {
	AccountNotify     bool
	AwayNotify        bool
	Batch             bool
	CapNotify         bool
	EchoMessage       bool
	InviteNotify      bool
	LabeledResponse   bool
	MessageTags       bool
	MultiPrefix       bool
	Sasl              bool
	ServerTime        bool
	SetName           bool
	UserhostInNames   bool
}

// HasMessageTags reports whether this client negotiated message-tags,
// i.e. whether it is sent lines with their tag block. Other
// tag-carrying capabilities (server-time, batch, labeled-response) do
// not count on their own.
func (c Capabilities) HasMessageTags() bool {
	return c.MessageTags
}

// capToken names every CAP REQ-able token and the bit it flips.
var capToken = map[string]func(*Capabilities, bool){
	"account-notify":    func(c *Capabilities, v bool) { c.AccountNotify = v },
	"away-notify":       func(c *Capabilities, v bool) { c.AwayNotify = v },
	"batch":             func(c *Capabilities, v bool) { c.Batch = v },
	"cap-notify":        func(c *Capabilities, v bool) { c.CapNotify = v },
	"echo-message":      func(c *Capabilities, v bool) { c.EchoMessage = v },
	"invite-notify":     func(c *Capabilities, v bool) { c.InviteNotify = v },
	"labeled-response":  func(c *Capabilities, v bool) { c.LabeledResponse = v },
	"message-tags":      func(c *Capabilities, v bool) { c.MessageTags = v },
	"multi-prefix":      func(c *Capabilities, v bool) { c.MultiPrefix = v },
	"sasl":              func(c *Capabilities, v bool) { c.Sasl = v },
	"server-time":       func(c *Capabilities, v bool) { c.ServerTime = v },
	"setname":           func(c *Capabilities, v bool) { c.SetName = v },
	"userhost-in-names": func(c *Capabilities, v bool) { c.UserhostInNames = v },
}

// capNames lists every supported token, in a fixed order, for CAP LS.
var capNames = []string{
	"account-notify", "away-notify", "batch", "cap-notify", "echo-message",
	"invite-notify", "labeled-response", "message-tags", "multi-prefix",
	"sasl", "server-time", "setname", "userhost-in-names",
}

// capsAreSupported reports whether every space-separated token in caps
// is one this server knows how to negotiate.
func capsAreSupported(caps string) bool {
	for _, tok := range splitSpace(caps) {
		if _, ok := capToken[tok]; !ok {
			return false
		}
	}
	return true
}

// applyCapRequest flips every token in caps, already validated by
// capsAreSupported.
func applyCapRequest(c *Capabilities, caps string, value bool) {
	for _, tok := range splitSpace(caps) {
		if set, ok := capToken[tok]; ok {
			set(c, value)
		}
	}
}

func splitSpace(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			out = append(out, s[start:i])
			start = -1
		}
	}
	return out
}

// saslState is the client's SASL sub-state machine: idle until
// AUTHENTICATE names a mechanism, then mid-exchange until the session
// resolves.
type saslState struct {
	session *auth.Session
	buffer  []byte // accumulated base64-decoded chunks, reset each attempt
}

// regGates is the registration lattice: every independent gate that
// must close before a client is considered registered. Modeled as a
// product of booleans, not a single flag, so welcome delivery can be
// triggered exactly on the transition where the last gate closes.
type regGates struct {
	gotNick  bool
	gotUser  bool
	passOK   bool // true once PASS is satisfied, or no password is configured
	capEnded bool // false only while between CAP LS/REQ and CAP END
	saslDone bool // true unless an AUTHENTICATE exchange is in progress
}

func (g regGates) isRegistered() bool {
	return g.gotNick && g.gotUser && g.passOK && g.capEnded && g.saslDone
}

// Client is one connection's state: everything the network needs to
// know about a peer between peer-joined and peer-quit. Grounded on the
// teacher's Client/UserClient split (client.go, user_client.go),
// collapsed into one type since this server has no separate
// server-to-server registration path to distinguish from.
type Client struct {
	ID int

	Host string // remote host string, used to build nick!user@host

	Nick     string
	User     string
	RealName string

	Operator bool
	Account  string // set iff SASL authenticated; "" otherwise
	Away     string // away message, "" if not away

	Invisible     bool // +i: omitted from WHO for non-shared-channel queriers
	Wallops       bool // +w: stored and shown in RPL_UMODEIS; nothing sends WALLOPS
	ServerNotices bool // +s: stored and shown in RPL_UMODEIS; nothing sends server notices

	Caps       Capabilities
	CapVersion string // version argument of the last CAP LS that had one ("302" enables sasl=), else ""

	sasl saslState

	LastActivity time.Time

	gates regGates

	sink Sink
}

// NewClient creates an unregistered client with an empty sink-backed
// identity, as peer_joined does in the grounding source.
func NewClient(id int, host string, sink Sink, passRequired bool) *Client {
	return &Client{
		ID:           id,
		Host:         host,
		sink:         sink,
		LastActivity: time.Now(),
		gates: regGates{
			passOK:   !passRequired,
			capEnded: true,
			saslDone: true,
		},
	}
}

// IsRegistered reports whether every registration gate has closed.
func (c *Client) IsRegistered() bool {
	return c.gates.isRegistered()
}

// DisplayNick is the nick used to prefix numerics before NICK
// completes, matching the teacher's messageFromServer fallback of "*".
func (c *Client) DisplayNick() string {
	if c.Nick == "" {
		return "*"
	}
	return c.Nick
}

// FullName is the nick!user@host form used as a message prefix.
func (c *Client) FullName() string {
	return c.Nick + "!~" + c.User + "@" + c.Host
}

// Send enqueues a fully rendered line on this client's sink.
func (c *Client) Send(line string) {
	if c.sink != nil {
		c.sink.Send(line)
	}
}

// CanIssueCommand enforces the registration-order gate: PASS/USER are
// only legal pre-registration (ERR_ALREADYREGISTERED otherwise); NICK,
// CAP, AUTHENTICATE, and the keepalive/quit commands are legal at any
// time; everything else requires full registration.
func (c *Client) CanIssueCommand(cmd string) bool {
	switch cmd {
	case "USER", "PASS":
		return !c.IsRegistered()
	case "NICK", "CAP", "AUTHENTICATE", "PING", "PONG", "QUIT":
		return true
	default:
		return c.IsRegistered()
	}
}

// SetCapVersion records a CAP LS version argument ("302" enables
// extended sasl= advertisement).
func (c *Client) SetCapVersion(version string) {
	if version != "" {
		c.CapVersion = version
	}
}

// capBeginNegotiation opens the CAP gate (CAP LS/REQ): until CAP END,
// registration cannot complete.
func (c *Client) capBeginNegotiation() {
	c.gates.capEnded = false
}

// EndCapNegotiation closes the CAP gate (CAP END, or never opening it).
func (c *Client) EndCapNegotiation() {
	c.gates.capEnded = true
}

// SetNick records a completed NICK gate.
func (c *Client) SetNick(nick string) {
	c.Nick = nick
	c.gates.gotNick = true
}

// SetUser records a completed USER gate.
func (c *Client) SetUser(user, realName string) {
	c.User = user
	c.RealName = realName
	c.gates.gotUser = true
}

// SetPassOK records a satisfied PASS gate.
func (c *Client) SetPassOK() {
	c.gates.passOK = true
}

// beginSASL marks the SASL gate open (registration blocks until it
// resolves) and stashes the in-progress session.
func (c *Client) beginSASL(session *auth.Session) {
	c.gates.saslDone = false
	c.sasl = saslState{session: session}
}

// resetSASL aborts or concludes an AUTHENTICATE exchange, closing the
// gate regardless of outcome (a failed attempt doesn't block
// registration forever; the client may try again or register without
// SASL).
func (c *Client) resetSASL() {
	c.gates.saslDone = true
	c.sasl = saslState{}
}

// logIn records a successful SASL authentication.
func (c *Client) logIn(account string) {
	c.Account = account
	c.resetSASL()
}

// IsAuthenticated reports whether SASL succeeded for this client.
func (c *Client) IsAuthenticated() bool {
	return c.Account != ""
}

// UpdateActivity stamps the last-activity time, used for idle tracking
// (PING scheduling and timeouts in CheckIdleClients, and
// SweepLoginTimeouts).
func (c *Client) UpdateActivity() {
	c.LastActivity = time.Now()
}
