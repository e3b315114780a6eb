package backend

import "fmt"

// Drain consumes r until the stream ends, passing each line to emit.
// A clean end returns nil; a read failure is wrapped in ErrDrain.
func Drain(r *LineReader, emit func(string)) error {
	for {
		line, err := r.Next()
		if err != nil {
			if endOfStream(err) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrDrain, err)
		}
		if emit != nil {
			emit(line)
		}
	}
}
