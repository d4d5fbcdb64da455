package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedReply is returned when a control line does not start with a 3-digit code.
var ErrMalformedReply = errors.New("malformed reply")

// Reply is a numbered server response. Multi-line replies keep every line, the
// first and last included, exactly as received.
type Reply struct {
	Code  int
	Lines []string
}

// NewReply builds a single-line reply.
func NewReply(code int, text string) Reply {
	return Reply{Code: code, Lines: []string{fmt.Sprintf("%d %s", code, text)}}
}

// IsError reports whether the reply carries a 4xx or 5xx code.
func (r Reply) IsError() bool {
	return r.Code >= 400 && r.Code < 600
}

// Text returns the final line without its code.
func (r Reply) Text() string {
	if len(r.Lines) == 0 {
		return ""
	}
	last := r.Lines[len(r.Lines)-1]
	if len(last) > 4 {
		return last[4:]
	}
	return ""
}

// String joins all lines with newlines.
func (r Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// ReadLine reads one CRLF or LF terminated line and strips the terminator.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadReply reads a complete reply. A line of the form "NNN-text" opens a
// multi-line reply that ends at the first line starting with "NNN ".
func ReadReply(r *bufio.Reader) (Reply, error) {
	first, err := ReadLine(r)
	if err != nil {
		return Reply{}, err
	}

	code, multi, err := splitCode(first)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Code: code, Lines: []string{first}}
	if !multi {
		return reply, nil
	}

	terminal := strconv.Itoa(code) + " "
	for {
		line, err := ReadLine(r)
		if err != nil {
			return Reply{}, fmt.Errorf("reading continuation of %d: %w", code, err)
		}
		reply.Lines = append(reply.Lines, line)
		if strings.HasPrefix(line, terminal) {
			return reply, nil
		}
	}
}

func splitCode(line string) (code int, multi bool, err error) {
	if len(line) < 3 {
		return 0, false, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	code, err = strconv.Atoi(line[:3])
	if err != nil || code < 100 || code > 599 {
		return 0, false, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	if len(line) > 3 {
		switch line[3] {
		case '-':
			multi = true
		case ' ':
		default:
			return 0, false, fmt.Errorf("%w: %q", ErrMalformedReply, line)
		}
	}
	return code, multi, nil
}

// WriteLine writes s followed by CRLF.
func WriteLine(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\r\n")
	return err
}

// WriteReply writes every line of r.
func WriteReply(w io.Writer, r Reply) error {
	for _, line := range r.Lines {
		if err := WriteLine(w, line); err != nil {
			return err
		}
	}
	return nil
}
