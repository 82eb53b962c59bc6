package worker

// Package worker runs the bypass engine as a supervised child process.
//
// Overview
// A Worker owns at most one child at a time. Start validates the executable,
// spawns it and returns a Run. The Run streams the merged stdout and stderr of
// the child as ordered events and finishes with exactly one KindCompleted
// event carrying the Result.
//
// Data flow:
//
//   Worker              Run{id}                 child
//     |                   |                       |
//   Start -> preflight    |                       |
//     | os/exec.Start --->|---------------------->| spawn (own process group)
//     |                   | read goroutine  <-----| stdout+stderr pipe
//     |                   |   decode, filter      |
//     |                   |   push Line/Running   |
//     |                   | wait goroutine  <-----| exit
//     |<-- transition ----|   push Completed      |
//     |                   |   close events        |
//
// States:
//
//   Idle -> Starting -> Running -> Terminating -> Stopped
//                          \                        /
//                           `-----> Failed <-------'  (exit nobody asked for)
//
// Stopped and Failed are left on the next Start through Idle.
//
// Invariants:
//   - At most one active Run per Worker, Start returns model.ErrAlreadyRunning otherwise.
//   - Events of a Run carry its ID, a Run never sees events of another one.
//   - KindCompleted is the last event, the channel is closed right after.
//   - Terminate and Kill are idempotent and no-ops once the exit was observed.
//   - Producers never block on a slow consumer, the event queue is unbounded.
//
// Lock order is Run.mx before Worker.mx.
