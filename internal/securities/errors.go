package securities

import "errors"

// ErrNotFound is returned when a strike/kind/horizon triple or a security ID
// has no matching contract. It is an expected miss, not a failure.
var ErrNotFound = errors.New("security not found")
