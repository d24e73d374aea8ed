/*
Package durable defines the durable-state store contract used for crash
recovery, two implementations of it, and the Persister that serializes
writes per data id.

A store maps a data id to an opaque blob:

    SetState(dataID, state)   // durable once it returns nil
    GetState(dataID)          // nil, nil when nothing was stored
    Flush()

Protocol code never calls a store directly from the event loop. It goes
through a Persister, which runs the write off the loop and delivers the
completion back onto it. At most one write per data id is in flight; a state
submitted meanwhile replaces any state still waiting and is written once the
current write completes.
*/
package durable
