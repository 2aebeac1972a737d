package ledger

import "errors"

// ErrTradeNotFound is returned when no matching open trade exists.
var ErrTradeNotFound = errors.New("no matching open trade")

// ErrInvalidTrade is returned when trade parameters fail validation. The
// ledger is untouched when this is returned.
var ErrInvalidTrade = errors.New("invalid trade")
