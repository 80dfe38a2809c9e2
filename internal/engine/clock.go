package engine

import "time"

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}
