package room

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrMembersLimitReached  = errors.New("members limit reached")
	ErrPlaylistLimitReached = errors.New("playlist limit reached")
	ErrInvariantViolation   = errors.New("invariant violation")
)
