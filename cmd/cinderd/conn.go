package main

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// conn wraps a net.Conn with a bufio.ReadWriter and per-operation
// deadlines. Grounded on horgh-catbox's net.go Conn, generalized to
// read/write raw lines instead of an irc.Message (internal/ircmsg owns
// parsing/building now, one layer up).
type conn struct {
	nc     net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration
}

func newConn(nc net.Conn, ioWait time.Duration) *conn {
	return &conn{
		nc:     nc,
		rw:     bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)),
		ioWait: ioWait,
	}
}

func (c *conn) Close() error {
	return c.nc.Close()
}

func (c *conn) RemoteHost() string {
	host, _, err := net.SplitHostPort(c.nc.RemoteAddr().String())
	if err != nil {
		return c.nc.RemoteAddr().String()
	}
	return host
}

// readLine reads one CRLF- or LF-terminated line, trimmed of its line
// ending. A deadline bounds how long a client may go silent.
func (c *conn) readLine() (string, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// writeLine writes one line verbatim. The caller (replybuf.Buffer via
// ircmsg.Builder.Build) already terminates it with "\r\n"; writeLine
// must not append another one.
func (c *conn) writeLine(line string) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := c.rw.WriteString(line); err != nil {
		return err
	}
	return c.rw.Flush()
}
