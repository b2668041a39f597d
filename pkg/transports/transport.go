// Package transports holds the client-facing servers of tutorvoice.
package transports

import "context"

// Transport is a network front end managed by the lifecycle runner. Drain
// stops accepting clients and waits for open sessions until ctx ends.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Drain(ctx context.Context) error
}
