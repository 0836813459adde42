// Package relay fans build log events out to live subscribers.
//
// A Hub owns the channel registry. Subscriptions, disconnects and bus
// deliveries are all applied by one goroutine (Hub.Run), so a message is
// delivered either before or after a membership change, never during one.
// Each connection has a bounded outbound queue; a connection that falls
// behind is disconnected rather than slowing the others.
//
// Two transports sit on top of the hub: a websocket endpoint speaking
// {"event","data"} JSON frames and a Server-Sent Events endpoint that
// subscribes implicitly to the channel in its path.
package relay
