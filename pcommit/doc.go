// Package pcommit implements Paxos Commit. Every transaction runs one
// single-decree instance per group member, each deciding that member's
// vote, and the transaction commits once enough of them decide commit.
package pcommit
