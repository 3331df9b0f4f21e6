// Package crawler runs the crawl.
//
// A Scheduler owns the frontier and the crawl statistics and is the only
// goroutine that mutates them. It repeatedly:
//
//  1. dispatches queued tasks while the Pool has free connection slots,
//  2. waits (bounded by the poll interval) for worker outcomes,
//  3. records each outcome, expands links of successful pages, and
//  4. checkpoints the crawl state every few outcomes and whenever the
//     frontier drains.
//
// Workers run inside a claimed slot: they ask the Gate for permission and
// a politeness wait, sleep, fetch, and report exactly one Outcome.
// Cancelling the context passed to Run stops dispatching; fetches already
// on the wire finish, workers still waiting for their host are aborted
// and their tasks return to the frontier before the final checkpoint.
package crawler
