package kvs

import (
	"encoding/gob"
	"errors"

	"github.com/relab/txpaxos/multipaxos"
	"github.com/relab/txpaxos/net"
)

// Channels used by a replica.
const (
	PaxosChannel   = "kv/paxos"
	CatchupChannel = "kv/catchup"
	ClientChannel  = "kv/client"
)

func init() {
	gob.Register(ProposeValue{})
	gob.Register(ProposeReply{})
	gob.Register(QueryValue{})
	gob.Register(QueryResult{})
	gob.Register(CatchupRequest{})
	gob.Register(CatchupData{})
}

type ProposeValue struct {
	Key       string
	Value     []byte
	RequestID string
	Token     string
}

// ProposeReply answers a ProposeValue. Err is empty on success, and
// Instance is where the write was decided.
type ProposeReply struct {
	RequestID string
	Err       string
	Instance  uint64
}

type QueryValue struct {
	Key string
}

// QueryResult is read from the answering replica's local state, which
// may be stale.
type QueryResult struct {
	Key      string
	Value    []byte
	Instance uint64
	Found    bool
}

type CatchupRequest struct {
	LastKnownInstance uint64
}

// CatchupData holds every record written after FromInstance, up to and
// including LastInstance.
type CatchupData struct {
	FromInstance uint64
	LastInstance uint64
	Records      []Record
}

func (ProposeValue) Kind() net.Kind   { return net.KindProposeValue }
func (ProposeReply) Kind() net.Kind   { return net.KindProposeReply }
func (QueryValue) Kind() net.Kind     { return net.KindQueryValue }
func (QueryResult) Kind() net.Kind    { return net.KindQueryResult }
func (CatchupRequest) Kind() net.Kind { return net.KindCatchupRequest }
func (CatchupData) Kind() net.Kind    { return net.KindCatchupData }

var (
	ErrAccessDenied = errors.New("access denied")
	ErrSuperseded   = errors.New("another proposal was decided for the instance")
	ErrStopped      = errors.New("replica stopped")
)

var replyErrors = []error{
	ErrAccessDenied,
	ErrSuperseded,
	ErrStopped,
	multipaxos.ErrInstanceMismatch,
	multipaxos.ErrProposalPending,
	multipaxos.ErrInactive,
}

// Result turns the Err field back into one of the package's error values
// when it names one.
func (pr ProposeReply) Result() error {
	if pr.Err == "" {
		return nil
	}
	for _, err := range replyErrors {
		if err.Error() == pr.Err {
			return err
		}
	}
	return errors.New(pr.Err)
}

// IsStale reports whether err only means the request met an outdated view
// and should be resubmitted.
func IsStale(err error) bool {
	switch err {
	case ErrSuperseded, multipaxos.ErrInstanceMismatch, multipaxos.ErrProposalPending, multipaxos.ErrInactive:
		return true
	}
	return false
}

func newReply(requestID string, instance uint64, err error) ProposeReply {
	pr := ProposeReply{RequestID: requestID, Instance: instance}
	if err != nil {
		pr.Err = err.Error()
	}
	return pr
}
