// Package thicket indexes a source-code project into a queryable graph of
// symbols, relationships and source locations, and keeps that graph
// consistent as files are added, modified or removed without rescanning
// everything on each change.
//
// # Runs
//
// An [Engine] drives one indexing run at a time through the states
// Idle, Diffing, Invalidating, Parsing and Reporting:
//
//  1. Diffing: the change detector scans the configured roots and classifies
//     every file as added, updated, removed or unchanged.
//  2. Invalidating: each changed file's previous contributions are withdrawn
//     from the graph. Nodes and edges survive while any other file still
//     retains them.
//  3. Parsing: added and updated files are handed to the [FrontEnd], which
//     reports nodes, edges, locations and error records through [Client].
//  4. Reporting: a [Completion] is emitted to every handler and returned.
//
// # Usage
//
//	fe := thicket.NewMux().
//		Handle(runtime.NewScriptFrontEnd("", runtime.WithScriptsFS(scripts.FS)), runtime.Extensions()...).
//		Handle(decl.New(), decl.Extensions...)
//	e := thicket.New(thicket.Config{SourceRoots: []string{"src"}}, fe)
//
//	comp, err := e.Index(ctx)
//	if err != nil { ... }
//
//	foo, ok := e.Graph().NodeByName("function", "main.Foo")
//	locs := e.Locations().At("src/main.go", 10, 5)
//
// # Queries
//
// [GraphView] and [LocationView] expose read-only lookups by id, by
// qualified name, and by (file, line, column), plus glob search
// ([GraphView.Find]) and breadth-first traversal ([GraphView.Reachable]).
// Queries share the store's run gate, so they run concurrently with each
// other and wait while a run is invalidating or parsing.
//
// # Persistence
//
// With [WithSnapshotStore] the graph is saved to SQLite at the end of every
// run; [Engine.Restore] reloads it and primes change detection, so the next
// run only processes what changed since.
package thicket
