//go:build !windows

package debug

import "errors"

var errNoRSS = errors.New("rss sampling is only implemented on windows")

func processRSS() (uint64, error) { return 0, errNoRSS }
