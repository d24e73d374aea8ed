/*
Package multipaxos sequences consecutive single-decree Paxos instances.

A Sequencer owns the current instance number and one paxos.Engine for it.
Inbound protocol messages are delivered only when they carry the current
instance; a small allow-list of kinds (heartbeats and advocate traffic)
bypasses that filter. When the engine resolves, the Sequencer reports the
decided Proposal to its Handler and moves to the next instance with a
fresh engine.

Before the engine may send a Promise or Accepted, the Sequencer writes a
RecoveryRecord through a durable.Persister:

    engine.PersistenceRequired() -> Persist(record) -> engine.Persisted()

On start-up Initialize reads the record back and resumes mid-instance.

An Advocate makes sure a locally submitted Proposal reaches whichever node
currently leads, retrying on a fixed interval until the leader acknowledges
it or the instance advances.
*/
package multipaxos
