package net

import "fmt"

// Kind enumerates every message type exchanged between replicas.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Synod engine
	KindPrepare
	KindPromise
	KindPrepareNack
	KindAccept
	KindAccepted
	KindAcceptNack

	// Leadership and sequencing
	KindHeartbeat
	KindProposalRequest
	KindProposalAck

	// Key/value application
	KindProposeValue
	KindProposeReply
	KindQueryValue
	KindQueryResult
	KindCatchupRequest
	KindCatchupData

	// Paxos Commit
	KindTxMessage
	KindTxResult
)

var kindNames = [...]string{
	KindUnknown:         "Unknown",
	KindPrepare:         "Prepare",
	KindPromise:         "Promise",
	KindPrepareNack:     "PrepareNack",
	KindAccept:          "Accept",
	KindAccepted:        "Accepted",
	KindAcceptNack:      "AcceptNack",
	KindHeartbeat:       "Heartbeat",
	KindProposalRequest: "ProposalRequest",
	KindProposalAck:     "ProposalAck",
	KindProposeValue:    "ProposeValue",
	KindProposeReply:    "ProposeReply",
	KindQueryValue:      "QueryValue",
	KindQueryResult:     "QueryResult",
	KindCatchupRequest:  "CatchupRequest",
	KindCatchupData:     "CatchupData",
	KindTxMessage:       "TxMessage",
	KindTxResult:        "TxResult",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// A Message is anything that can be carried in an Envelope. Concrete
// message types must also be registered with encoding/gob.
type Message interface {
	Kind() Kind
}
