// Package slot computes publish timestamps.
//
// Allocation is pure: a policy takes an anchor time and the set of already
// reserved timestamps and returns the next valid slot, or ErrSlotExhausted
// when nothing fits inside the search horizon. Persisting the grant is the
// caller's job. Calling Next repeatedly with the previous grant as anchor
// (and added to taken) yields a monotone, collision-free batch, so entries
// approved earlier always land on earlier slots.
package slot
