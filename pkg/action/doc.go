// Package action composes units of work ("actions") into sequences,
// fan-out/fan-in groups, ordered sandwiches, loops, retries and linear
// pipelines.
//
// Every action implements Action: Do takes a parameter and returns a Result,
// which is either immediate (Ready, Fail) or suspended (Suspend). Composite
// actions route every inner result through the normalizer, Await, so
// synchronous and asynchronous actions mix freely in the same list or chain.
// Sequential composites stay immediate for as long as their inner results
// are immediate and only move onto a goroutine at the first suspended one.
//
// Actions that can always answer without suspending also implement
// SyncAction. The pipeline builder uses that distinction at construction
// time: a Chain only accepts SyncAction steps through Join and Pass, and the
// first JoinWait or PassWait turns it into an AsyncChain whose pipeline must
// be awaited.
//
// No component cancels work or bounds time. The context passed to Do is
// handed to inner actions unchanged so leaves can honor it.
package action
