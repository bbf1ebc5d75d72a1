package topology

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/c360/semrete/message"
	"github.com/c360/semrete/rete"
)

// envelope is a delivery tagged with the ack tree it belongs to and its own
// tree-local ID. IDs are random and nonzero; the tree's XOR of all issued and
// acked IDs reaches zero when every envelope has been processed.
type envelope struct {
	tree     uint64
	id       uint64
	delivery rete.Delivery
}

func newEnvelopeID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}

// wrap tags deliveries for tree and returns the XOR of the new IDs
func wrap(tree uint64, ds []rete.Delivery) ([]envelope, uint64) {
	if len(ds) == 0 {
		return nil, 0
	}
	out := make([]envelope, len(ds))
	var xor uint64
	for i, d := range ds {
		id := newEnvelopeID()
		out[i] = envelope{tree: tree, id: id, delivery: d}
		xor ^= id
	}
	return out, xor
}

type wireEnvelope struct {
	Tree    uint64          `json:"tree"`
	ID      uint64          `json:"id"`
	To      int             `json:"to"`
	Side    rete.Side       `json:"side,omitempty"`
	Fact    *message.Triple `json:"fact,omitempty"`
	Binding *rete.Binding   `json:"binding,omitempty"`
}

func encodeEnvelope(e envelope) ([]byte, error) {
	w := wireEnvelope{Tree: e.tree, ID: e.id, To: int(e.delivery.To), Side: e.delivery.Side}
	if !e.delivery.Fact.Subject.IsZero() {
		f := e.delivery.Fact
		w.Fact = &f
	} else {
		b := e.delivery.Binding
		w.Binding = &b
	}
	return json.Marshal(w)
}

func decodeEnvelope(data []byte) (envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return envelope{}, err
	}
	if w.ID == 0 {
		return envelope{}, fmt.Errorf("envelope for node %d has no id", w.To)
	}
	d := rete.Delivery{To: rete.NodeID(w.To), Side: w.Side}
	if w.Fact != nil {
		d.Fact = *w.Fact
	}
	if w.Binding != nil {
		d.Binding = *w.Binding
	}
	return envelope{tree: w.Tree, id: w.ID, delivery: d}, nil
}

// derivedFact is a consequent carried in a report
type derivedFact struct {
	Rule   string         `json:"rule"`
	Node   int            `json:"node"`
	Triple message.Triple `json:"triple"`
}

// report tells the tree owner what processing one envelope produced.
// Ack is the processed envelope's ID XOR the IDs of every child it emitted.
type report struct {
	Tree    uint64        `json:"tree"`
	Ack     uint64        `json:"ack"`
	Derived []derivedFact `json:"derived,omitempty"`
}

func encodeReport(r report) ([]byte, error) {
	return json.Marshal(r)
}

func decodeReport(data []byte) (report, error) {
	var r report
	err := json.Unmarshal(data, &r)
	return r, err
}

// streamFact is a source fact on the JetStream ingestion subject. Origin and
// Seq name the run instance that published it, so the owner can tell its own
// first deliveries from redeliveries and from facts left by an earlier run.
type streamFact struct {
	Origin string         `json:"origin"`
	Seq    uint64         `json:"seq"`
	Triple message.Triple `json:"triple"`
}

func encodeStreamFact(f streamFact) ([]byte, error) {
	return json.Marshal(f)
}

func decodeStreamFact(data []byte) (streamFact, error) {
	var f streamFact
	if err := json.Unmarshal(data, &f); err != nil {
		return streamFact{}, err
	}
	if f.Triple.Subject.IsZero() {
		return streamFact{}, fmt.Errorf("stream fact %s/%d has no triple", f.Origin, f.Seq)
	}
	return f, nil
}

// subjects builds the NATS subjects for one run
type subjects struct {
	prefix string
	run    string
}

func (s subjects) node(id rete.NodeID) string {
	return s.prefix + "." + s.run + ".node." + strconv.Itoa(int(id))
}

func (s subjects) derived() string {
	return s.prefix + "." + s.run + ".derived"
}

func (s subjects) facts() string {
	return s.prefix + "." + s.run + ".facts"
}
