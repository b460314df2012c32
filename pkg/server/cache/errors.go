package cache

import "errors"

// ErrRefreshPending marks an expired entry served while its refresh is still in flight.
var ErrRefreshPending = errors.New("refresh still in flight")
