// Package channel implements the one-directional command conduit from a
// session manager to its scan worker.
//
// A Channel is handed out by the worker's bind handshake. Send enqueues a
// command onto the worker's serial queue without waiting for it to run;
// commands sent over one channel are executed in send order. Unbind releases
// the channel and returns once the release is issued, whether or not the
// worker has drained its queue.
package channel
