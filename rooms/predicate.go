package rooms

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/corelocks/synctools/qsync/qerrors"
)

// tryAcquireRoom implements the acquire predicate shared by Rooms and
// GenderLock (Dynamic implements its own per-strategy variant in
// dynamic.go): free state is claimed outright, a matching occupied room's
// count is bumped, and any other room's occupancy is reported as "must
// wait". A count increment that would carry into the index bits is
// reported as overflow, logged at Error immediately before it is raised,
// rather than silently corrupting the encoded index.
func tryAcquireRoom(log *zap.Logger, state *uint32, mask, encIdx uint32) (int32, error) {
	for {
		s := atomic.LoadUint32(state)

		var next uint32
		switch {
		case s == 0:
			next = encIdx | 1
		case s&mask == encIdx:
			if s&^mask == ^mask {
				log.Error("rooms: room occupancy count overflow", zap.Uint32("room", encIdx))
				return -1, qerrors.ErrOverflow
			}
			next = s + 1
		default:
			return -1, nil
		}

		if atomic.CompareAndSwapUint32(state, s, next) {
			return 1, nil
		}
	}
}

// tryReleaseRoom implements the release predicate shared by all three room
// primitives: the caller's room must match the one currently encoded, the
// count is decremented, and the state collapses to 0 (free) once the count
// portion reaches zero.
func tryReleaseRoom(state *uint32, mask, encIdx uint32) (bool, error) {
	for {
		s := atomic.LoadUint32(state)
		if s&mask != encIdx {
			return false, qerrors.ErrIllegalMonitorState
		}
		next := s - 1
		if next&^mask == 0 {
			next = 0
		}
		if atomic.CompareAndSwapUint32(state, s, next) {
			return next == 0, nil
		}
	}
}
