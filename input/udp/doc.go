// Package udp provides a fact source that receives N-Triples over UDP.
//
// Every datagram carries one or more N-Triples lines. A read loop copies
// datagrams off the socket into a bounded buffer.Buffer so a slow run never
// stalls the socket; when the buffer is full the configured overflow policy
// drops a datagram and the drop is counted. Lines are parsed in arrival order
// and malformed ones are logged and skipped as in the file source.
//
// The stream has no end: Run returns nil when its context is cancelled, so a
// UDP-fed topology finishes only when it is killed.
//
//	{"type": "udp", "config": {"addr": "0.0.0.0:7878", "buffer_size": 5000}}
package udp
