/*
Package paxos implements the Synod protocol: a single-decree consensus engine
combining the proposer, acceptor and learner roles of one node.

An Engine is a passive state machine. Inbound messages are fed to its Recv
methods and every effect is routed through the Messenger it was created with:
outbound messages, resolution and leadership changes. The engine never touches
the network, a clock or a disk.

Promises and accepts change acceptor state that must survive a crash. The
engine therefore holds back the corresponding Promise or Accepted message and
reports PersistenceRequired; the owner saves the acceptor state and then calls
Persisted, which releases the held messages.

One engine decides one value. The multipaxos package strings engines together
into a sequence of instances, and the pcommit package runs one engine per
transaction participant.
*/
package paxos
