// Package inprocess wires a clientcore.Client directly to a
// *servercore.Server without crossing a network boundary — useful for
// tests and for single-process deployments (spec.md §9 design note "a
// direct in-process server is acceptable for testing without the HTTP
// transport").
package inprocess

import (
	"context"

	"github.com/moya-app/overlap-psi/internal/oprf"
	"github.com/moya-app/overlap-psi/internal/servercore"
)

// Helper implements clientcore.Helper by calling straight into a
// *servercore.Server.
type Helper struct {
	Server *servercore.Server
}

// New builds an in-process Helper for server.
func New(server *servercore.Server) *Helper {
	return &Helper{Server: server}
}

// OPRF forwards to the server's OPRF step.
func (h *Helper) OPRF(ctx context.Context, points []oprf.Point) ([]oprf.Point, error) {
	return h.Server.OPRF(points)
}

// Query forwards to the server's Query step.
func (h *Helper) Query(ctx context.Context, publicContext []byte, encQuery [][][]byte) ([][]byte, error) {
	return h.Server.Query(publicContext, encQuery)
}
