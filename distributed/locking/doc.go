// Package locking provides a uniform distributed mutual-exclusion handle
// backed by pluggable Store implementations.
//
// A caller constructs a Key for the resource it wants to protect, binds it
// to a Store via NewLock, and calls Acquire/AcquireRead to obtain
// exclusive or shared hold. The Lock coordinator layers polling fallback,
// TTL translation, expiry detection and best-effort auto-release on top of
// whichever capability tier the Store honors natively; see the Store,
// Shared, BlockingExclusive and BlockingShared interfaces for the
// capability contract each backend adapter implements.
package locking
