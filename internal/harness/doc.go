// Package harness provides an in-process fake conductor and a scenario
// runner for exercising the client end to end.
//
// FakeConductor serves the admin and app interfaces over real websockets
// (net/http/httptest + gorilla/websocket) and speaks the same frame
// protocol as a conductor: it verifies zome call signatures against the
// capability grants it holds, tracks installed apps and their clone cells,
// and records every request it answers in a trace.
//
// Scenarios are YAML files describing a clone lifecycle flow and the
// expected outcome of each step:
//
//	name: clone_lifecycle
//	description: create, disable and delete a clone
//	app_id: chat-app
//	roles: [chat]
//	flow:
//	  - op: create_clone
//	    role: chat
//	    expect:
//	      state: enabled
//	  - op: delete_clone
//	    clone_id: chat.0
//	    expect:
//	      error: precondition
//	assertions:
//	  - type: trace_count
//	    method: delete_clone_cell
//	    count: 0
//
// Run executes a scenario against a fresh FakeConductor and returns the
// conductor's trace; RunWithGolden compares it with a golden file under
// testdata/golden.
//
// The trace records what reached the conductor, so steps rejected on the
// client (precondition failures, signing failures) leave no event.
package harness
