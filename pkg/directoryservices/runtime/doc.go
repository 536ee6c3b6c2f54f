// Package runtime implements the directory-service membership
// lifecycle: the join and leave executors, the configuration update
// entry point, and the operation lock that serializes them.
//
// A join or leave is a long-running, multi-step operation against the
// domain controller with many failure injection points. The executors
// persist lifecycle state before doing expensive work so an
// interrupted operation remains observable, compensate partial joins
// with a best-effort leave, and report progress checkpoints throughout.
package runtime
