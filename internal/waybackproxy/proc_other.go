//go:build !linux

package waybackproxy

func processRSSBytes() (uint64, bool) { return 0, false }
