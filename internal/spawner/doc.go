// Package spawner implements the process creation demos: unordered,
// sequential and synchronized-parallel spawning of NumChildren children, and
// the unchecked proliferation of BombRounds rounds.
//
// Every routine runs in the original process and prints to Runner.Out; children
// print to the stdout descriptor they inherited from Forker.Stdout. The child
// side of each routine is registered with proc in this package's init, so any
// binary importing spawner must call proc.Init first thing in main.
package spawner
