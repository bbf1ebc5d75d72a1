// Package errors provides standardized error handling for SemRete components.
//
// # Classification
//
// Errors fall into three classes that drive handling decisions:
//
//   - Transient: connection loss, timeouts, temporary unavailability (retry)
//   - Invalid: malformed input such as a bad N-Triples line (skip, count, continue)
//   - Fatal: bad rules, cyclic networks, exhausted sink retries (stop the run)
//
// Use the Wrap helpers to attach component context and a class in one step:
//
//	if err := w.Flush(); err != nil {
//	    return errors.WrapTransient(err, "FileSink", "Flush", "write batch")
//	}
//
// The message format is "component.method: action failed: cause".
//
// # Rule engine errors
//
// MalformedRuleError and CyclicDependencyError are returned while a topology is
// built. IncompleteBindingError is raised by a terminal node at run time and
// marks that node failed. MalformedFactError describes a skipped input line.
// All of them work with errors.As.
package errors
