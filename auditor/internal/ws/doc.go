// Package ws implements the WebSocket hub for the auditor.
//
// Hub re-encodes the result snapshot every interval (config
// server.ws_interval) and wakes each subscriber to write the newest frame.
// Subscribers never queue frames, so a slow client only misses snapshots
// that were already superseded.
//
// New(results, interval) creates a Hub. Hub.Run(ctx) blocks on the ticker
// and disconnects every subscriber when ctx is cancelled. Hub.ServeHTTP
// upgrades the request, writes the snapshot at once and then each newer
// one. Notify asks for an out-of-band publish, used after a batch is
// classified.
//
// Frame format:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
// The hub is mounted at /ws/stream behind the same API-key check as /api/.
package ws
