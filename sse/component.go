package sse

import (
	"context"
	"fmt"

	"github.com/kbukum/wirekit/component"
)

// Component wraps a Hub as a lifecycle-managed component. Register it
// with the component registry so shutdown tears down every connection.
type Component struct {
	hub  *Hub
	path string
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent wraps the hub. The path names the endpoint the handler is
// mounted on and only informs Describe.
func NewComponent(hub *Hub, path string) *Component {
	return &Component{hub: hub, path: path}
}

// Hub returns the wrapped hub.
func (c *Component) Hub() *Hub { return c.hub }

// Name returns the component name.
func (c *Component) Name() string { return transportName }

// Start is a no-op; the hub accepts connections as soon as it exists.
func (c *Component) Start(_ context.Context) error { return nil }

// Stop closes the hub, tearing down every connection.
func (c *Component) Stop(_ context.Context) error {
	c.hub.Close()
	return nil
}

// Health reports the connection count.
func (c *Component) Health(_ context.Context) component.Health {
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d connections", c.hub.Len()),
	}
}

// Describe returns a summary for infrastructure displays.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name: "Push Hub",
		Type: transportName,
		Details: fmt.Sprintf("%s keepalive=%s clients=%d",
			c.path, c.hub.cfg.KeepAliveInterval, c.hub.Len()),
	}
}
