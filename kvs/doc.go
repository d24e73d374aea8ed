/*
Package kvs is a replicated key/value store on top of Multi-Paxos.

Every write is proposed through a multipaxos.Sequencer and applied when its
instance resolves. A stored record remembers the instance that wrote it,
and a record only replaces another one with a lower instance. Applying the
same set of records in any order therefore gives the same state, which is
what lets a lagging replica catch up by copying records from a peer.

A replica that discovers it is behind stops voting, asks the leader (or
everyone) for the records written after the last instance it knows, and
rejoins once it has everything up to the instance under negotiation.

The membership of the group is itself stored under ConfigKey, so
membership changes are ordered with ordinary writes and reach lagging
replicas through the same catch-up path.
*/
package kvs
