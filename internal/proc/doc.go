// Package proc provides the process primitives the demos are built on:
// duplicating the running program into a child process, waiting for any child
// to terminate, and one-byte signal channels shared between a parent and a
// single child.
//
// Go cannot call fork(2) safely once the runtime has started its threads, so
// duplication re-executes the current binary. The child receives a Task in its
// environment that says which registered routine to run and where to resume.
// Programs call Init as the first statement of main; in a child Init runs the
// registered routine and exits, in the parent it returns false.
//
// Only POSIX systems are supported. Completion waits use wait4(2) with a pid of
// -1, so a parent observes children in termination order without knowing which
// one it is waiting for.
package proc
