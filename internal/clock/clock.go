package clock

import "time"

// NowFunc returns the current wall-clock time. Tests override it to pin
// timestamps; the kernel core keeps time in timer ticks and only uses this
// for bookkeeping fields such as Process.CreatedAt.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }
