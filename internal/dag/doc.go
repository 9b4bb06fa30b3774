// Package dag defines the immutable dependency graph a document pipeline is
// built from.
//
// A Graph is assembled once at startup from an ordered list of StepSpec
// records via the Builder, validated structurally (missing dependencies,
// cycles, emptiness), and never mutated afterwards. Steps carry no execution
// state, so one validated Graph may be executed any number of times
// concurrently by independent runs.
package dag
