// Package broadcast receives wake-up messages from the shared broadcast
// channel and routes them to registered handlers.
//
// Broadcast messages are transient. They carry no state of their own: the
// process_update_log kind only tells a worker to go read the durable log.
// Because of that, the dispatcher is forgiving where the log replay is
// strict. Undecodable payloads and unknown kinds are logged and dropped, and
// a failing handler never stops the listen loop.
package broadcast
