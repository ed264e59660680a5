// Package api implements the HTTP REST API and WebSocket server for casa-core.
//
// This package provides:
//   - REST endpoints for the dashboard snapshot, devices, sensors, the
//     connection lifecycle, commands and the traffic log
//   - WebSocket hub for real-time change broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits between the dashboard and the engine. Commands flow
// from the API to the engine, which publishes them on the bus; confirmed
// state flows back from the bus through the engine hooks and is pushed to
// WebSocket clients subscribed to the matching channel.
//
// # Graceful Degradation
//
// The server operates while the bus is down: reads and WebSocket
// connections work, only commands fail with 409 Conflict.
package api
