package domain

import "errors"

var (
	ErrWriteConflict      = errors.New("ledger_write_conflict")
	ErrNothingToSupersede = errors.New("ledger_no_open_post")
	ErrMultipleOpenPosts  = errors.New("ledger_multiple_open_posts")
	ErrOpenPostExists     = errors.New("ledger_open_post_exists")
	ErrInvalidPost        = errors.New("ledger_invalid_post")
)
