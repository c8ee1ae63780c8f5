// Package harness runs replay and broadcast scenarios for conformance tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: broadcast_trigger
//	description: "A process_update_log message replays new entries"
//	start_cursor: -1          # optional, defaults to -1
//	lock_mode: block          # optional, block or skip
//	fail_ops:                 # optional, template ops that return status error
//	  add_template: "no such template"
//	entries:
//	  - { seq: 0, kind: init }
//	steps:
//	  - replay: true
//	  - append: { seq: 1, kind: echo, payload: { msg: hi } }
//	  - message: '{"kind":"process_update_log","arguments":{}}'
//	assertions:
//	  - { type: call_count, op: add_template, count: 1 }
//	  - { type: cursor, seq: 1 }
//
// Each step does exactly one thing: replay calls ProcessLog directly,
// message hands a raw payload to the dispatcher, append adds an entry to
// the in-memory log verbatim (so gaps and duplicates can be staged).
//
// # Assertion Types
//
//   - call_count: the template op was called exactly count times
//   - call_contains: some call of op had exactly args
//   - call_order: the ops were first called in this order
//   - cursor: the final cursor equals seq
//   - step_error: step failed with the given error code ("" for success)
//
// # Deterministic Testing
//
// Steps run synchronously on one goroutine against an in-memory log and a
// recording template manager, so the trace is identical across runs and
// can be compared with golden files in testdata/golden.
package harness
