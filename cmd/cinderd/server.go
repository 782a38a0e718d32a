package main

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/horgh/cinder/internal/config"
	"github.com/horgh/cinder/internal/ircmsg"
	"github.com/horgh/cinder/internal/state"
)

// ioWait bounds how long a connection may sit with no read/write
// progress before it's abandoned, same role as horgh-catbox's
// Conn.ioWait (net.go).
const ioWait = 5 * time.Minute

const (
	pingEvery    = 2 * time.Minute
	idleTimeout  = 4 * time.Minute
	alarmPeriod  = 15 * time.Second
)

// server owns the listeners and the shared network state, generalizing
// horgh-catbox's Server (ircd.go) to call into internal/state.Network
// rather than holding client/channel maps directly: the single-mutex
// network owns that state now.
type server struct {
	network  *state.Network
	log      *logrus.Logger
	accepts  *rate.Limiter
	shutdown chan struct{}
}

func newServer(network *state.Network, log *logrus.Logger) *server {
	return &server{
		network: network,
		log:     log,
		// Sustained 20 accepts/sec, bursting to 50, across all listeners:
		// a defense against connection-flood abuse that horgh-catbox
		// didn't need (it never stood on the open internet).
		accepts:  rate.NewLimiter(rate.Limit(20), 50),
		shutdown: make(chan struct{}),
	}
}

// listen starts accepting on every configured address, in plaintext or
// TLS depending on whether TLS cert/key paths are set.
func (s *server) listen(listens []config.ListenConfig) error {
	for _, lc := range listens {
		ln, err := s.bind(lc)
		if err != nil {
			return err
		}
		go s.acceptLoop(ln)
	}
	return nil
}

func (s *server) bind(lc config.ListenConfig) (net.Listener, error) {
	if lc.TLSCert == "" {
		return net.Listen("tcp", lc.Address)
	}

	cert, err := tls.LoadX509KeyPair(lc.TLSCert, lc.TLSKey)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", lc.Address, &tls.Config{Certificates: []tls.Certificate{cert}})
}

// acceptLoop mirrors horgh-catbox's acceptConnections: accept, spawn
// per-client goroutines, repeat. Rate-limited and logged instead of
// fatal on resolve failure.
func (s *server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			s.log.WithError(err).Warn("accept failed")
			continue
		}

		if err := s.accepts.Wait(context.Background()); err != nil {
			_ = nc.Close()
			continue
		}

		go s.handleConn(nc)
	}
}

// handleConn runs one client's lifetime: register with the network,
// read lines until EOF/error/timeout, clean up on exit. Grounded on
// horgh-catbox's readLoop/writeLoop pair (ircd.go), collapsed to one
// goroutine plus a writer goroutine since internal/state.Network is
// already safe for concurrent callers and needs no serializing
// channel.
func (s *server) handleConn(nc net.Conn) {
	c := newConn(nc, ioWait)
	sink := newChanSink()

	host := c.RemoteHost()
	id := s.network.PeerJoined(host, sink)
	entry := s.log.WithFields(logrus.Fields{"id": id, "host": host})
	entry.Info("client connected")

	go runWriter(c, sink, entry)

	var readErr error
	defer func() {
		// PeerQuit queues the client's final QUIT broadcast/ERROR line
		// before sink.close() tells the writer no more lines are coming,
		// so that final line still reaches it instead of being dropped.
		s.network.PeerQuit(id, readErr)
		sink.close()
		entry.Info("client disconnected")
	}()

	for {
		line, err := c.readLine()
		if err != nil {
			readErr = err
			return
		}
		if line == "" {
			continue
		}

		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}

		if _, err := s.network.HandleMessage(id, msg); err != nil {
			if err == state.ErrClientGone {
				return
			}
		}
	}
}

// loginTimeoutSweeper periodically drops connections that never
// finished registration in time. Separate from alarm because the
// login timeout is configurable per-network (internal/state.Config's
// LoginTimeoutMS) while the ping/idle timers are fixed server policy.
func loginTimeoutSweeper(network *state.Network) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for range t.C {
		network.SweepLoginTimeouts()
	}
}

// alarm periodically sweeps idle clients, same role as horgh-catbox's
// alarm/checkAndPingClients pair (ircd.go), generalized from a
// channel-synchronized wakeup of the single server goroutine to a
// direct call into the mutex-protected Network.
func (s *server) alarm() {
	t := time.NewTicker(alarmPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.network.CheckIdleClients(pingEvery, idleTimeout)
		case <-s.shutdown:
			return
		}
	}
}
