package txpaxos

import (
	"errors"
)

var (
	ErrNodeNotInitialized            = errors.New("txpaxos node must be initialized before started")
	ErrCanNotStartAlreadyRunningNode = errors.New("can't start already running txpaxos node")
	ErrCanNotStopNonRunningNode      = errors.New("can't stop non-runnning txpaxos node")
)
