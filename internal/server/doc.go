// Package server implements the HTTP, Server-Sent Events and WebSocket
// surface of the phrase hat server.
//
// The implementation is organized into specialized files for configuration,
// phrase recording, WebSocket clients, routing, and HTTP handlers. A Server
// owns its hat and subscription hub, so every instance is isolated.
package server
