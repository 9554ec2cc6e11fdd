// Package dspruntime defines the contract between a host application and the
// execution core of a real-time signal-processing runtime.
//
// A host obtains a Performer from a PerformerFactory, loads an immutable
// program, discovers its endpoints, binds callbacks to the endpoints it cares
// about, links, and then drives rendering with Advance from a real-time
// thread:
//
//	perf := interp.NewFactory().CreatePerformer()
//
//	var msgs diag.List
//	if !perf.Load(&msgs, prog) {
//	    log.Fatal(msgs.String())
//	}
//	perf.Bindings().BindStreamSource("in", readInput)
//	perf.Bindings().BindStreamSink("out", writeOutput)
//
//	if !perf.Link(&msgs, dspruntime.DefaultLinkOptions(), cache) {
//	    log.Fatal(msgs.String())
//	}
//	for running {
//	    perf.Advance(256)
//	}
//
// # Packages
//
//	dspruntime/          Performer, PerformerFactory, LinkOptions, LinkerCache
//	├── program/         Immutable program graphs, Builder, YAML documents
//	├── endpoint/        Endpoint metadata, callbacks, binding table
//	├── diag/            Diagnostics collected by Load and Link
//	├── errors/          Structured error types
//	├── interp/          Bytecode interpreter backend
//	├── jit/             WebAssembly backend running on wazero
//	├── linkcache/       Bounded in-memory LinkerCache
//	├── metrics/         Prometheus instrumentation
//	├── cmd/perform/     CLI: inspect, render, watch, monitor
//	└── examples/        Runnable host programs
//
// # Thread Safety
//
// A Performer is not safe for concurrent use and starts no goroutines. The
// host must serialize every call to a given performer; Advance, Reset and
// XRuns are typically called from the audio thread and everything else from
// a control thread with external synchronization. Advance never takes a
// lock. It never allocates once LinkOptions.MaxBlockSize covers the largest
// quantum; with no cap, endpoint buffers grow the first time a larger
// quantum arrives.
//
// Factories and caches shipped in this module are safe for concurrent use, so
// performers created by one factory may link concurrently against one cache.
//
// # Diagnostics
//
// Load and Link report problems only by appending to the caller's diag.List
// and returning false. An error-severity message is always paired with a
// false return; warnings and info may accompany success.
package dspruntime
