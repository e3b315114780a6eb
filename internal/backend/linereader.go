package backend

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
)

// LineReader yields newline-delimited text from a pipe. It is shared by the
// handshake and the drain that follows it so buffered bytes are not lost.
type LineReader struct {
	br *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReader(r)}
}

// Next returns the next line without its terminator. An unterminated final
// line is returned before io.EOF. Invalid UTF-8 is replaced, not rejected.
func (l *LineReader) Next() (string, error) {
	s, err := l.br.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return strings.ToValidUTF8(s, "\uFFFD"), nil
}

// endOfStream treats EOF and a pipe closed by us as a normal end.
func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, fs.ErrClosed)
}
