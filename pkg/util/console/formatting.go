package console

import (
	"time"

	"github.com/xeonx/timeago"
)

// FormatTime renders t as a relative time, e.g. "3 days ago".
func FormatTime(t time.Time) string {
	return timeago.English.Format(t)
}
