package helpers

import (
	"strconv"
	"strings"
)

// IntToString converts int64 to string.
func IntToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// JoinFields joins fields with a comma, the pipe record separator.
func JoinFields(fields ...string) string {
	return strings.Join(fields, ",")
}

// WaitAll returns a channel which is closed once every input channel is closed.
func WaitAll(chs ...<-chan struct{}) <-chan struct{} {
	resCh := make(chan struct{})

	go func() {
		for _, ch := range chs {
			<-ch
		}
		close(resCh)
	}()

	return resCh
}
