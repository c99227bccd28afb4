// Package memorytools is the closed set of tools the assistant may call:
// memory_search and memory_ingest.
//
// [Parse] turns a model-requested call into a [SearchCall] or [IngestCall],
// repairing slightly broken JSON and rejecting anything else with an
// [InputError]. A [Toolset] executes validated calls against a
// [memory.Provider].
package memorytools
