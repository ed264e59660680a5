// Package bus owns the single broker connection of casa-core.
//
// The Manager drives an explicit lifecycle:
//
//	Disconnected ──Connect──▶ Connecting ──ok──▶ Connected ──loss──▶ Lost
//	      ▲                        │                  │                │
//	      └────────failure─────────┘                  │                │
//	      └──────────────────Disconnect───────────────┘                │
//	                                 Connecting ◀──────Connect─────────┘
//
// Connecting is always a user action: there is no automatic retry after a
// failed attempt or a lost connection.
//
// Every session gets a fresh client id. Callbacks from a session that is no
// longer current (a late connect result, a message delivered after
// Disconnect) are ignored, so a stale session can never move the state or
// touch device state.
//
// Every transition, every subscription and every inbound message is recorded
// in the traffic log. Inbound messages are logged before they are routed, so
// a malformed payload appears as a received entry followed by an error entry.
package bus
