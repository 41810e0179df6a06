// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import (
	"bufio"
	"net"
	"strings"
	"time"

	"sasecore/internal/errors"
)

// UnixSocketExecutor dispatches commands over a unix-domain control
// socket, the transport both VPP's CLI and BIRD's birdc speak: connect,
// write the command line, read until the socket goes idle or closes.
type UnixSocketExecutor struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// NewUnixSocketExecutor builds an executor with the given per-command
// timeouts, defaulting to 2s dial and 2s read when zero.
func NewUnixSocketExecutor(dialTimeout, readTimeout time.Duration) *UnixSocketExecutor {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	return &UnixSocketExecutor{DialTimeout: dialTimeout, ReadTimeout: readTimeout}
}

// Exec connects to socket, sends command terminated by a newline, and
// returns whatever the peer writes back before closing or idling out.
func (e *UnixSocketExecutor) Exec(socket, command string) (string, error) {
	conn, err := net.DialTimeout("unix", socket, e.DialTimeout)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "dial %s", socket)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "write command to %s", socket)
	}

	conn.SetReadDeadline(time.Now().Add(e.ReadTimeout))
	var out strings.Builder
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		out.WriteString(scanner.Text())
		out.WriteByte('\n')
	}
	return out.String(), nil
}
