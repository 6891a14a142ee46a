package socket

import (
	"context"
	"fmt"

	"github.com/kbukum/wirekit/component"
)

// Component runs a Conn's read pump under lifecycle management. Register
// it with the component registry so shutdown clears pending requests and
// releases the transport.
type Component struct {
	conn     *Conn
	endpoint string
	cancel   context.CancelFunc
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent wraps the conn. The endpoint only informs Describe.
func NewComponent(conn *Conn, endpoint string) *Component {
	return &Component{conn: conn, endpoint: endpoint}
}

// Conn returns the wrapped conn.
func (c *Component) Conn() *Conn { return c.conn }

// Name returns the component name.
func (c *Component) Name() string { return transportName }

// Start launches the read pump.
func (c *Component) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	go func() {
		_ = c.conn.Run(runCtx)
	}()
	return nil
}

// Stop closes the conn and stops the read pump.
func (c *Component) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.conn.Close()
}

// Health reports whether the read pump is still running.
func (c *Component) Health(_ context.Context) component.Health {
	select {
	case <-c.conn.Done():
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "connection closed",
		}
	default:
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusHealthy,
			Message: fmt.Sprintf("%d pending requests", c.conn.Pending()),
		}
	}
}

// Describe returns a summary for infrastructure displays.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Socket Conn",
		Type:    transportName,
		Details: c.endpoint,
	}
}
