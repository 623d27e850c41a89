package http

import (
	"time"

	xutil "CropCast/pkg/util"
)

// ParseTime tries YYYY-MM-DD, RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// AlignDays widens the range to whole UTC days.
func AlignDays(from, to time.Time) (time.Time, time.Time) { return xutil.AlignDays(from, to) }
