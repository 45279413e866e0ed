// Package qerrors defines the small error vocabulary shared by every lock
// in this module: IllegalMonitorState for misuse, Overflow for exhausted
// count fields, and condition-support errors for handles that don't carry
// an exclusive mode. Cancellation and timeout are represented with
// context.Canceled / context.DeadlineExceeded rather than bespoke types,
// since callers already hold a context.Context on every blocking call.
package qerrors

import "errors"

// ErrIllegalMonitorState is returned when a release does not correspond to
// a prior successful acquisition by the same principal, when a shared
// release's mode does not match the currently held mode, or when a room
// release names a room other than the one currently held.
var ErrIllegalMonitorState = errors.New("qsync: illegal monitor state")

// ErrOverflow is returned when the maximum reentrancy/shared-holder count
// for a state field would be exceeded. The lock is left in its prior state.
var ErrOverflow = errors.New("qsync: count field overflow")

// ErrConditionUnsupported is returned by a predicate path that its
// primitive never hands out a handle for: the exclusive-mode operations of
// the room-style primitives and the shared-mode operations of ownedlock.
// Shared-mode handles have no NewCondition method at all.
var ErrConditionUnsupported = errors.New("qsync: condition not supported on this lock mode")

// ErrUnknownRoom is returned by a static RoomSynchronizer/GenderLock when
// asked to lock a key that was not part of the room set given at
// construction. DynamicRooms never returns this: any key mints a room.
var ErrUnknownRoom = errors.New("qsync: unknown room key")
