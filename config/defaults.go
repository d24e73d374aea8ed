package config

import (
	"time"
)

// Default configuration settings
const (
	// REQUIRED!
	// nodes: uid:hostname:paxosPort:clientPort, ...
	// Defines the initial membership. Comma separated list. Once the
	// replicated configuration key has been written, it takes precedence.
	DefNodes = ""

	// hbPulseInterval: duration
	// How frequently does the leader broadcast heartbeats?
	DefHbPulseInterval = 250 * time.Millisecond

	// hbPollInterval: duration
	// How frequently does a node check that the leader is alive?
	DefHbPollInterval = 250 * time.Millisecond

	// livenessWindow: duration
	// How long can we go without a heartbeat from the leader before
	// trying to acquire leadership ourselves?
	DefLivenessWindow = 1000 * time.Millisecond

	// advocateRetryInterval: duration
	// How often is a pending proposal re-sent to the leader, or
	// re-accepted if we are the leader?
	DefAdvocateRetryInterval = 200 * time.Millisecond

	// catchupRetryDelay: duration
	// How long do we wait for catch-up data before asking again?
	DefCatchupRetryDelay = 1000 * time.Millisecond

	// txTimeout: duration
	// Time after which undecided transaction participants may be
	// aborted by the transaction leader.
	DefTxTimeout = 5 * time.Second

	// txHeartbeatInterval: duration
	// How frequently are open transactions driven towards resolution?
	DefTxHeartbeatInterval = 500 * time.Millisecond

	// txThreshold: int
	// Number of commit votes needed to commit a transaction. Zero means
	// every node.
	DefTxThreshold = 0

	// txResultsCacheSize: int
	// Number of finished transactions remembered to answer late
	// messages.
	DefTxResultsCacheSize = 1024

	// storageBackend: bolt | mem
	DefStorageBackend = "bolt"

	// storageDir: string
	// Directory for the durable state and key/value databases.
	DefStorageDir = "./data"

	// adminToken: string
	// Token required to propose values for reserved keys. Empty means
	// reserved keys can only be written by the node itself.
	DefAdminToken = ""

	// dialTimeout: duration
	DefDialTimeout = 500 * time.Millisecond

	// sendQueueSize: int
	// Outgoing message queue per peer. Messages are dropped when full.
	DefSendQueueSize = 512

	// requestTimeout: duration
	// How long a client waits for a reply before trying the next node.
	DefRequestTimeout = 2 * time.Second

	// throughputSamplingInterval: duration
	// How often is the number of resolved instances logged as an event?
	// Zero disables sampling.
	DefThroughputSamplingInterval = 0 * time.Second

	// requestRetries: int
	// How many times a client resubmits a request after stale-view
	// errors or timeouts.
	DefRequestRetries = 5
)
