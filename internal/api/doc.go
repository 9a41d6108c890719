// Package api provides the HTTP REST API and WebSocket server for the
// Study Social platform.
//
// It exposes registration and login, the member directory, study posts,
// study rooms, direct messages, friend requests, and an admin surface,
// plus a WebSocket hub for real-time chat events.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
