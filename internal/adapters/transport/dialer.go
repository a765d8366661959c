package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dialer opens client connections to a server.
type Dialer struct {
	Timeout time.Duration
	Options Options
}

// DialContext connects to addr and starts the connection pumps under ctx.
func (d Dialer) DialContext(ctx context.Context, addr string) (*Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	nc, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn := NewConn(0, NewStreamFramer(nc), d.Options)
	conn.Start(ctx)
	return conn, nil
}
