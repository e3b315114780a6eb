package backend

import (
	"strconv"
	"strings"
)

// ParsePortLine reports the port announced by line, if any. The remainder
// after prefix must be a base-10 uint16 with nothing else on the line.
func ParsePortLine(line, prefix string) (uint16, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// ReadHandshake reads lines until one announces the port. Every line,
// including the sentinel, is passed to emit first. It returns found=false
// with a nil error when the stream ends without a sentinel.
func ReadHandshake(r *LineReader, prefix string, emit func(string)) (port uint16, found bool, err error) {
	if prefix == "" {
		prefix = DefaultHandshakePrefix
	}
	for {
		line, err := r.Next()
		if err != nil {
			if endOfStream(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if emit != nil {
			emit(line)
		}
		if p, ok := ParsePortLine(line, prefix); ok {
			return p, true, nil
		}
	}
}
