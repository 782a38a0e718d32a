package state

import (
	"time"

	"golang.org/x/time/rate"
)

// pointsOf is the per-command quota cost table, fixed by the values in
// original_source/src/state/mod.rs's points_of: failed commands cost
// double (applied by the caller), successful ones cost exactly this.
var pointsOf = map[string]uint32{
	"ADMIN":        1,
	"AUTHENTICATE": 6,
	"AWAY":         4,
	"CAP":          1,
	"INFO":         2,
	"INVITE":       4,
	"JOIN":         4,
	"KICK":         2,
	"KILL":         2,
	"LIST":         6,
	"LUSERS":       2,
	"MODE":         2,
	"MOTD":         2,
	"NAMES":        2,
	"NICK":         4,
	"NOTICE":       4,
	"OPER":         6,
	"PART":         4,
	"PASS":         2,
	"PING":         1,
	"PONG":         1,
	"PRIVMSG":      4,
	"QUIT":         1,
	"REHASH":       1,
	"SETNAME":      4,
	"TAGMSG":       4,
	"TIME":         2,
	"TOPIC":        3,
	"USER":         1,
	"VERSION":      1,
	"WHO":          3,
	"WHOIS":        3,
}

// cost returns the point cost of command, 1 for anything not in the
// table (unknown commands still consume a point, per the grounding
// source's Command::Reply catch-all).
func cost(command string) uint32 {
	if c, ok := pointsOf[command]; ok {
		return c
	}
	return 1
}

// quota is the per-client leaky-bucket accounting used to decide
// whether a command is within budget. The core never blocks or sleeps
// on it: callers get back an allow/deny decision and the point cost is
// always returned to the surrounding I/O layer regardless, so
// back-pressure stays entirely outside the critical section.
type quota struct {
	limiter *rate.Limiter
}

// newQuota creates a bucket refilling at ratePerSec points/second, up
// to burst points, same shape as the connection-accept limiter used in
// cmd/cinderd but scoped per client instead of per listener.
func newQuota(ratePerSec float64, burst int) *quota {
	return &quota{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// allow reports whether n points are currently within budget. It never
// blocks.
func (q *quota) allow(n uint32) bool {
	return q.limiter.AllowN(time.Now(), int(n))
}
