// Package websocket provides a live WebSocket feed of derived triples.
//
// The sink either runs its own server (Config.Addr) or is mounted on an
// existing one as an http.Handler:
//
//	sink, err := websocket.NewSink(websocket.Config{
//	    ClientBuffer: 256,
//	    WriteTimeout: 10 * time.Second,
//	    PingInterval: 30 * time.Second,
//	}, deps)
//	mux.Handle("/ws", sink)
//
// Every derived triple is sent to each connected client as a JSON envelope:
//
//	{"type":"data","id":"…","timestamp":1700000000000,"payload":{"triple":"<a> <b> <c> ."}}
//
// Delivery is at most once. Clients see only triples derived after they
// connect, and a client whose send queue is full misses triples rather than
// slowing the run down. Use the file or nats outputs where every consequent
// must be kept.
//
// Close flushes each client's queue, sends a normal close frame and stops
// the owned server.
package websocket
