package api

import "errors"

// ErrUnknownSymbol indicates a requested symbol that is not tracked.
var ErrUnknownSymbol = errors.New("unknown symbol")
