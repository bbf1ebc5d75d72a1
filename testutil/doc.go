// Package testutil provides test doubles and fixtures shared by SemRete's
// package tests.
//
// MockNATSClient is an in-memory stand-in for natsclient.Client's Publish and
// Subscribe, with NATS wildcard matching and context-scoped subscriptions.
// CollectorSink records derived triples; SliceSource and ChanSource feed
// facts from memory.
//
// The HumanBeing fixture is the end-to-end scenario: two chained rules, an
// N-Triples input with a malformed line, and the expected consequents:
//
//	rules := strings.NewReader(testutil.HumanBeingRules)
//	input := testutil.WriteFile(t, "input.nt", testutil.HumanBeingFacts)
package testutil
