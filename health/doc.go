// Package health reports the health of submitted topologies.
//
// FromRun turns a topology.RunStatus into a Status tree with the fact source
// and sink as sub-statuses. Error text is sanitized before it is reported so
// URLs, file paths and credentials from connection errors never reach the
// status endpoint.
//
// A Monitor aggregates named probes and serves them as JSON:
//
//	mon := health.NewMonitor("semrete")
//	mon.Register("humans", health.RunProbe(cluster, "humans"))
//	metricsServer.Handle("/status", mon)
//
// The endpoint answers 503 while any probe is unhealthy.
package health
