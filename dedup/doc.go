// Package dedup decides what to do with a delivered message given its recorded handling status.
//
// The Interceptor resolves the key of every delivered message through an Adapter, looks the
// handling state up in a kv.Store, runs the State machine and applies the resulting Action:
// the next status is persisted first and the transport disposition (drop or requeue) is applied
// afterwards. A message whose status is already terminal never reaches the handler, so redundant
// copies and transport redeliveries of one logical message have a single effect.
//
// Store layout for a message key K (with the optional key prefix applied):
//
//	K:status    INCOMPLETE, COMPLETE or FAILED
//	K:attempts  number of handler invocations
//	K:mutex     claim time (unix nanoseconds), exclusive handling only
package dedup
