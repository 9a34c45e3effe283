package main

import (
	"fmt"
	"time"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
