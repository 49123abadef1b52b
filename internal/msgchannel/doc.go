// Package msgchannel is the message-passing frame transport between the host
// application and the extension process.
//
// A Channel owns the connection state machine:
//
//	disconnected -> connecting -> connected
//	connected -> interrupted -> connecting      (automatic retry)
//	connecting -> failed                        (retry budget spent)
//	failed -> connecting                        (explicit Connect only)
//
// Connect dials a Transport, then probes the remote with GetExtensionStatus
// before it reports connected. Failed attempts are retried after
// BaseDelay*retryCount, up to MaxAttempts in total. An interruption posts one
// ConnectionLostEvent and retries immediately before falling back to the same
// schedule. An invalidation posts ConnectionLostEvent and stays disconnected.
//
// Every operation is asynchronous and reports through a completion callback,
// which may run on any goroutine. Operations on a channel that is not
// connected complete with ErrNotConnected before returning. At most
// MaxInFlight frames are outstanding; a frame submitted while the channel is
// busy is dropped, never queued.
//
// The receiving side implements Handler and answers requests with Serve.
package msgchannel
