/*
Package client is responsible for client-replica communication. A client
connects to any replica's client port, says hello with its id, and then
sends Put, Get and transaction vote requests, one at a time, each with a
sequence number.

On the replica, ClientHandlerTCP accepts connections and hands every
request to an Executor on the node's event loop. The last response sent to
each client is kept, so a retransmitted request is not executed twice.

Messages are length-prefixed protobuf; see msg.proto.
*/
package client
