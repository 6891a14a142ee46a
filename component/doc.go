// Package component defines the core interfaces for lifecycle-managed
// pieces of a wirekit service.
//
// Components represent long-lived services that require startup, shutdown,
// and health monitoring, such as an SSE hub or a socket listener. They are
// registered with a Registry which starts them in registration order and
// stops them in reverse.
//
// # Interfaces
//
//   - Component: Core lifecycle interface (Start/Stop/Health)
//   - Describable: Startup summary descriptions
//   - RouteProvider: HTTP route reporting for server components
package component
