package dispatch

import "time"

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}
