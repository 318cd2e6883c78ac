package errorvalues

import "errors"

var (
	ErrUserExists       = errors.New("such user already exists")
	ErrUserNotFound     = errors.New("user doesn't exists")
	ErrWrongCredentials = errors.New("wrong name or password")
	ErrInvalidToken     = errors.New("invalid token")
	ErrWrongOwner       = errors.New("resource belongs to a different user")

	ErrEventNotFound    = errors.New("event doesn't exist")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidStatus    = errors.New("status transition not allowed")
	ErrScheduleOverlap  = errors.New("schedule events overlap without acknowledgement")
	ErrConflictsPresent = errors.New("conflicts present and caller required none")

	ErrTemplateNotFound        = errors.New("routine template doesn't exist")
	ErrInvalidRepeatRule       = errors.New("malformed repeat rule")
	ErrInstanceNotFound        = errors.New("routine instance doesn't exist")
	ErrInstanceAlreadyExecuted = errors.New("routine instance already executed")
	ErrNoFreeSlot              = errors.New("no free slot found, manual reschedule needed")

	ErrSnapshotNotFound        = errors.New("snapshot doesn't exist")
	ErrSnapshotAlreadyReverted = errors.New("snapshot already reverted")
	ErrSnapshotExpired         = errors.New("snapshot expired")
	ErrRevertFailed            = errors.New("revert validation failed, no state changed")
)
