// Package manager owns the single editing pipeline of the process. It is
// split into small files by concern:
//
//   - manager.go: Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: State, PipelineInfo, Snapshot and the Process input/output.
//   - errors.go: typed errors and their predicates (IsUnavailable, IsTooBusy, ...).
//   - assemble.go: the ordered load sequence that turns a Runtime into a Pipeline.
//   - ensure.go: Load, which runs assembly exactly once.
//   - queue_admission.go: the queue slot plus single in-flight slot.
//   - infer.go: Process, the edit entry point.
//   - status_report.go: Snapshot and Health reporting.
//   - unload.go: Close.
//
// Runtimes:
//
//   - Remote worker: NewRemoteRuntime talks to an already running worker
//     over the worker HTTP protocol (adapter_worker.go).
//   - Subprocess worker: NewSubprocessRuntime spawns the worker on a free
//     port, waits for its health check and stops it on Close
//     (adapter_worker_subprocess.go).
//
// The workertest subpackage serves the same protocol with a deterministic
// stand-in edit for tests and local runs.
//
// External packages should use the public methods only (New/NewWithConfig,
// Load, Ready, Health, Process, Close).
package manager
