package net

import (
	"fmt"

	"github.com/relab/txpaxos/grp"
)

// An Envelope wraps every message sent between replicas.
type Envelope struct {
	Channel  string
	From     grp.ID
	Instance uint64
	Msg      Message
}

func (env Envelope) String() string {
	return fmt.Sprintf("%v from %v on %q (instance %d)", kindOf(env.Msg), env.From, env.Channel, env.Instance)
}

func kindOf(msg Message) Kind {
	if msg == nil {
		return KindUnknown
	}
	return msg.Kind()
}

// The IDExchange message is used for verifying a replica in the Connection phase.
type IDExchange struct {
	ID grp.ID
}

// The IDResponse message is used for verifying a replica in the Connection phase.
type IDResponse struct {
	Accepted bool
	Error    string
}
