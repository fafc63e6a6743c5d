// Package worker implements the job-consuming side of the relay: it pulls
// generation jobs from the work queue, simulates token-by-token output, and
// publishes each token to the job's correlation channel followed by exactly
// one terminal marker (done, timeout, error, or expired).
//
// The loop acknowledges a job only after its terminal marker is published.
// Malformed jobs are rejected without requeue so they cannot loop forever;
// everything else either completes or terminates the stream explicitly so
// the relay never hangs until its idle timeout on a known failure.
package worker
