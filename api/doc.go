// Package api defines the JSON wire types of the Landau HTTP API.
//
// # API Overview
//
// Landau exposes two surfaces:
//   - the script backend: POST /api/v1/query, /api/v1/toc, /api/v1/section
//     and /api/v1/formula for direct access to the lecture collections
//   - the chat endpoint: GET /api/v1/chat upgraded to a WebSocket that
//     carries ClientMessage and ServerMessage frames
//
// Health endpoints (/health, /healthz, /ready, /version) are unauthenticated
// and return plain JSON. Prometheus metrics are served on a separate port.
//
// # Chat protocol
//
// Every frame is one JSON object with a "type" field:
//
//	client → server: message, settings, exam_setup
//	server → client: start, update, final, tool, error
//
// "update" always carries the full answer text generated so far, so a client
// can replace its rendering instead of appending.
package api
