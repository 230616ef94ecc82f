package queue

import "errors"

var (
	// ErrDuplicateEntry reports an Add for an id already in the list.
	ErrDuplicateEntry = errors.New("gallery already in waiting list")
	// ErrNotFound reports a Remove or MoveToFront for an id not in the list.
	ErrNotFound = errors.New("gallery not in waiting list")
	// ErrCorruptQueueFile reports content that does not decode as a list of requests.
	ErrCorruptQueueFile = errors.New("corrupt waiting list file")
)
