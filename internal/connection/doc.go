// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket connection per Session, dialed lazily
//   - Authenticates that connection at most once (auth channel handshake)
//   - Serializes and writes outbound frames
//   - Runs a single dispatch goroutine that delivers inbound frames, in
//     transport order, first to one-shot Waiters and then to Listeners
//   - Owns the ListenerRegistry the multiplexer reserves keys in
//
// Flush discards the connection, the registry and the auth state without
// talking to the server. There is no reconnection: a lost connection fails
// pending waiters and resets the session.
package connection
