package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/horgh/cinder/internal/auth"
	"github.com/horgh/cinder/internal/ircmsg"
)

// fakeSink collects every line sent to it, for assertions, the way the
// teacher's tests inspect a client's outbound buffer directly instead
// of standing up a real socket.
type fakeSink struct {
	lines []string
}

func (s *fakeSink) Send(line string) {
	s.lines = append(s.lines, line)
}

// hasPrefix reports whether any collected line starts with or contains
// prefix.
func (s *fakeSink) hasPrefix(prefix string) bool {
	for _, l := range s.lines {
		if strings.HasPrefix(l, prefix) || strings.Contains(l, prefix) {
			return true
		}
	}
	return false
}

func testNetwork() (*Network, auth.Provider) {
	finder := staticAccounts{"alice": mustHash("hunter2")}
	provider := &auth.CredentialStore{Accounts: finder}
	cfg := Config{
		Domain:              "irc.example.test",
		DefaultChannelModes: "",
		LoginTimeoutMS:       30000,
	}
	return NewNetwork(cfg, provider), provider
}

type staticAccounts map[string]string

func (s staticAccounts) FindAccount(account string) (string, bool) {
	h, ok := s[account]
	return h, ok
}

func mustHash(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func connectAndRegister(t *testing.T, n *Network, nick string) (int, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	id := n.PeerJoined("127.0.0.1", sink)

	msg, err := ircmsg.Parse("NICK " + nick)
	require.NoError(t, err)
	_, err = n.HandleMessage(id, msg)
	require.NoError(t, err)

	msg, err = ircmsg.Parse("USER u 0 * :" + nick + " Real Name")
	require.NoError(t, err)
	_, err = n.HandleMessage(id, msg)
	require.NoError(t, err)

	return id, sink
}

func send(t *testing.T, n *Network, id int, line string) {
	t.Helper()
	msg, err := ircmsg.Parse(line)
	require.NoError(t, err)
	_, err = n.HandleMessage(id, msg)
	require.NoError(t, err)
}

func TestWelcomeBurstOnRegistration(t *testing.T) {
	n, _ := testNetwork()
	_, sink := connectAndRegister(t, n, "alice")

	assert.True(t, sink.hasPrefix(" 001 "))
	assert.True(t, sink.hasPrefix(" 002 "))
	assert.True(t, sink.hasPrefix(" 003 "))
	assert.True(t, sink.hasPrefix(" 004 "))
	assert.True(t, sink.hasPrefix(" 005 "))
	assert.True(t, sink.hasPrefix(" 422 ")) // no MOTD configured: ERR_NOMOTD
}

func TestJoinBroadcastsToExistingMembers(t *testing.T) {
	n, _ := testNetwork()
	idA, sinkA := connectAndRegister(t, n, "alice")
	idB, sinkB := connectAndRegister(t, n, "bob")

	send(t, n, idA, "JOIN #room")
	sinkA.lines = nil
	send(t, n, idB, "JOIN #room")

	assert.True(t, sinkA.hasPrefix("JOIN #room"))
	assert.True(t, sinkB.hasPrefix("JOIN #room"))
}

func TestNickCollisionRejected(t *testing.T) {
	n, _ := testNetwork()
	connectAndRegister(t, n, "alice")

	sink := &fakeSink{}
	id := n.PeerJoined("127.0.0.1", sink)
	send(t, n, id, "NICK alice")

	assert.True(t, sink.hasPrefix(" 433 "))
}

func TestModeChangeIsIdempotent(t *testing.T) {
	n, _ := testNetwork()
	idA, sinkA := connectAndRegister(t, n, "alice")
	send(t, n, idA, "JOIN #room")
	sinkA.lines = nil

	idB, _ := connectAndRegister(t, n, "bob")
	send(t, n, idB, "JOIN #room")
	sinkA.lines = nil

	send(t, n, idA, "MODE #room +o bob")
	require.True(t, sinkA.hasPrefix("MODE #room +o bob"))

	sinkA.lines = nil
	send(t, n, idA, "MODE #room +o bob")
	assert.False(t, sinkA.hasPrefix("MODE #room +o bob"))
}

func TestSASLPlainSuccess(t *testing.T) {
	n, _ := testNetwork()
	sink := &fakeSink{}
	id := n.PeerJoined("127.0.0.1", sink)

	send(t, n, id, "CAP LS 302")
	send(t, n, id, "CAP REQ :sasl")
	send(t, n, id, "AUTHENTICATE PLAIN")
	send(t, n, id, "AUTHENTICATE AGFsaWNlAGh1bnRlcjI=") // \0alice\0hunter2, base64
	send(t, n, id, "CAP END")
	send(t, n, id, "NICK alice")
	send(t, n, id, "USER u 0 * :Alice")

	assert.True(t, sink.hasPrefix(" 900 "))
	assert.True(t, sink.hasPrefix(" 903 "))
	assert.True(t, sink.hasPrefix(" 001 "))

	c := n.clients.get(id)
	require.NotNil(t, c)
	assert.Equal(t, "alice", c.Account)
}

func TestQuitCascadesToChannelPeers(t *testing.T) {
	n, _ := testNetwork()
	idA, sinkA := connectAndRegister(t, n, "alice")
	idB, sinkB := connectAndRegister(t, n, "bob")
	send(t, n, idA, "JOIN #room")
	send(t, n, idB, "JOIN #room")
	sinkB.lines = nil

	send(t, n, idA, "QUIT :goodbye")

	assert.True(t, sinkB.hasPrefix("QUIT :goodbye"))
	assert.Nil(t, n.clients.get(idA))

	ch, ok := n.findChannel("#room")
	require.True(t, ok)
	_, stillMember := ch.Members[idA]
	assert.False(t, stillMember)

	_ = sinkA
}
