package event

import (
	"fmt"
	"time"
)

type Event struct {
	Type    Type
	Node    string
	Time    time.Time
	EndTime time.Time
	Value   uint64
}

type Type uint8

const (
	// General: 0-15
	Unknown          Type = 0
	Start            Type = 1
	Running          Type = 2
	ThroughputSample Type = 3
	ShutdownStart    Type = 4
	Exit             Type = 5

	// Sequencer: 16-31
	InstanceResolved Type = 16
	InstanceForced   Type = 17
	ProposalSet      Type = 18
	PersistFailed    Type = 19
	Recovered        Type = 20

	// Leadership: 32-39
	LeadershipAcquired Type = 32
	LeadershipLost     Type = 33
	LeaderChanged      Type = 34

	// Catch-up: 56-63
	CatchUpStart    Type = 56
	CatchUpSentReq  Type = 57
	CatchUpRecvReq  Type = 58
	CatchUpSentResp Type = 59
	CatchUpRecvResp Type = 60
	CatchUpDone     Type = 61

	// Transactions: 64-71
	TxCreated   Type = 64
	TxCommitted Type = 65
	TxAborted   Type = 66

	// Membership: 72-79
	MembershipChanged Type = 72

	// Client Request Latency: 88-95
	ClientRequestLatency Type = 88
)

var typeNames = map[Type]string{
	Unknown:              "Unknown",
	Start:                "Start",
	Running:              "Running",
	ThroughputSample:     "ThroughputSample",
	ShutdownStart:        "ShutdownStart",
	Exit:                 "Exit",
	InstanceResolved:     "InstanceResolved",
	InstanceForced:       "InstanceForced",
	ProposalSet:          "ProposalSet",
	PersistFailed:        "PersistFailed",
	Recovered:            "Recovered",
	LeadershipAcquired:   "LeadershipAcquired",
	LeadershipLost:       "LeadershipLost",
	LeaderChanged:        "LeaderChanged",
	CatchUpStart:         "CatchUpStart",
	CatchUpSentReq:       "CatchUpSentReq",
	CatchUpRecvReq:       "CatchUpRecvReq",
	CatchUpSentResp:      "CatchUpSentResp",
	CatchUpRecvResp:      "CatchUpRecvResp",
	CatchUpDone:          "CatchUpDone",
	TxCreated:            "TxCreated",
	TxCommitted:          "TxCommitted",
	TxAborted:            "TxAborted",
	MembershipChanged:    "MembershipChanged",
	ClientRequestLatency: "ClientRequestLatency",
}

func (t Type) String() string {
	if s, found := typeNames[t]; found {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func NewEvent(t Type) Event {
	return Event{
		Type: t,
		Time: time.Now(),
	}
}

func NewEventWithMetric(t Type, v uint64) Event {
	return Event{
		Type:  t,
		Time:  time.Now(),
		Value: v,
	}
}

func NewTimedEvent(t Type, start time.Time) Event {
	return Event{
		Type:    t,
		Time:    start,
		EndTime: time.Now(),
	}
}

// On labels the event with the node it happened on.
func (e Event) On(node string) Event {
	e.Node = node
	return e
}

const layout = "2006-01-02 15:04:05.999999999"

func (e Event) String() string {
	switch e.Type {
	case InstanceResolved, InstanceForced, ProposalSet, Recovered,
		CatchUpStart, CatchUpDone, CatchUpSentReq, CatchUpRecvResp:
		return fmt.Sprintf("%v:\t%6v %20v %6d",
			e.Time.Format(layout), e.Node, e.Type, e.Value)
	case ClientRequestLatency:
		return fmt.Sprintf("%v:\t%6v %20v Latency: %v",
			e.EndTime.Format(layout), e.Node, e.Type, e.EndTime.Sub(e.Time))
	default:
		if e.EndTime.IsZero() {
			return fmt.Sprintf("%v:\t%6v %20v",
				e.Time.Format(layout), e.Node, e.Type)
		}
		return fmt.Sprintf("%v:\t%6v %20v %v",
			e.Time.Format(layout), e.Node, e.Type, e.EndTime.Format(layout))
	}
}
