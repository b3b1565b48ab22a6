// Package model defines the wire-level records exchanged with the venue.
//
// Outbound messages are Frames: flat JSON objects that always carry an
// "action" and a "channel", plus channel-specific parameters.
//
// Inbound messages are Events: every frame the server sends carries a
// "channel" and an "event" (subscribed, unsubscribed, rejected, snapshot,
// updated), optionally a "seqnum" and a human-readable "text".
//
// Conventions:
//   - Prices and quantities: shopspring/decimal, never float64
//   - Symbols: "BASE-COUNTER" (e.g. "BTC-USD")
//   - Order IDs: server-assigned orderID, client-assigned clOrdID (max 20 chars)
package model
