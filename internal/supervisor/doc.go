// Package supervisor owns the lifecycle of vLLM server subprocesses. It is
// structured into small files by concern:
//
//   - supervisor.go: core Supervisor type, Config, constructor, snapshots.
//   - status.go: instance states and the per-model status projection.
//   - errors.go: error types and helpers (IsConflict, IsNotFound, IsPrecondition).
//   - ports.go: port allocation against the live registry.
//   - loghub.go: per-instance bounded log buffer with subscriber fan-out.
//   - command.go: building the vLLM server invocation from a record.
//   - start.go: Start; spawns the process group and the output reader.
//   - health.go: the asynchronous health-check routine that commits
//     running/error.
//   - stop.go: Stop, ClearError, StopAll and process-group termination.
//
// One registry entry exists per model in states starting/running/error;
// absence means stopped. All registry mutations, including port allocation,
// happen under a single mutex so that concurrent starts can neither double
// admit a model nor pick the same port. Health checks and output readers run
// as goroutines and re-enter the registry only through that mutex.
package supervisor
