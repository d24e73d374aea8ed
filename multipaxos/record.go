package multipaxos

import (
	"bytes"
	"encoding/gob"

	"github.com/relab/txpaxos/paxos"
)

// DataID is the durable-store key of the sequencer's recovery record.
const DataID = "multipaxos"

// A Proposal is what a client asks the replicas to agree on. It travels
// gob-encoded as the engine's value, so a decided value still names the
// request it came from.
type Proposal struct {
	RequestID string
	Value     []byte
}

func (p Proposal) Encode() (paxos.Value, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return paxos.Value(buf.Bytes()), nil
}

func DecodeProposal(v paxos.Value) (Proposal, error) {
	var p Proposal
	err := gob.NewDecoder(bytes.NewReader(v)).Decode(&p)
	return p, err
}

// A RecoveryRecord is everything needed to resume the current instance
// after a crash.
type RecoveryRecord struct {
	Instance      uint64
	Proposal      *Proposal
	ProposalID    paxos.ProposalID
	PromisedID    paxos.ProposalID
	AcceptedID    paxos.ProposalID
	AcceptedValue paxos.Value
}

func (rr *RecoveryRecord) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*RecoveryRecord, error) {
	rr := new(RecoveryRecord)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(rr); err != nil {
		return nil, err
	}
	if rr.Instance == 0 {
		return nil, errMalformedRecord
	}
	return rr, nil
}
