package store

import "errors"

var (
	ErrNoTicket         = errors.New("no ticket available")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrLinkCodeNotFound = errors.New("link code not found")
	ErrLinkCodeUsed     = errors.New("link code already bound")
	ErrActiveTicket     = errors.New("identity already has a waiting ticket")
)
