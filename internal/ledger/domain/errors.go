package domain

import "errors"

var (
	ErrInvalidVoteType = errors.New("invalid_vote_type")
	ErrInvalidArtist   = errors.New("invalid_artist")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrVoteInProgress  = errors.New("vote_in_progress")
)
