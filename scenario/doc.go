// Package scenario is the verification engine of the conformance harness.
//
// A Scenario is a short sequence of Steps, each one ETSI 014 call made as one
// role against one target SAE, followed by Checks evaluated over the recorded
// results. A step lists the protocol styles it is executed in; when it lists
// both, the two executions must agree on the classified outcome and, on
// success, on the number and size of the returned keys.
//
// DefaultTable holds the complete set of scenarios. A Runner executes them with
// bounded parallelism. Each scenario gets its own HTTPS clients, one per role it
// uses, so no connection state crosses scenario boundaries.
//
// Every scenario ends in one of three verdicts:
//
//	passed   every expectation and check held
//	failed   an expectation or check did not hold
//	errored  a transport failure, a schema violation or a broken precondition
//	         stopped the scenario
package scenario
