/*
Package net is responsible for abstracting away all of the inter-replica
communication in the system. This module doesn't handle communication between
replica and client.

Every message travels in an Envelope naming a hierarchical channel (such as
"kv/paxos" or "txn"), the sending node, and the sender's current Multi-Paxos
instance. Message kinds form a closed enumeration (Kind), and each node owns a
Router holding a static dispatch table from (channel, kind) to handler:

    rt := net.NewRouter()
    rt.Handle("kv/paxos", net.KindPrepare, seq.Receive)
    rt.Handle("kv", net.KindCatchupRequest, r.receiveCatchupRequest)

A message is dispatched to the first handler registered for its kind on its
channel, falling back to parent channels ("kv/paxos" then "kv" then ""). A
message nobody handles is ignored.

Two Transports are provided. TCPTransport carries gob-encoded envelopes between
processes; LocalNetwork connects nodes living in one process and can drop,
partition or disconnect them, which the protocol tests rely on. Both treat the
network as unreliable: messages may be lost, but are never corrupted or
misrouted.
*/
package net
