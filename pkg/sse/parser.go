package sse

import (
	"bytes"
	"strings"
)

// Frame is one server-sent event: an optional event name and zero or more
// data lines, in arrival order.
type Frame struct {
	Event string
	Data  []string
}

// Payload returns the data lines joined with newlines.
func (f Frame) Payload() string {
	return strings.Join(f.Data, "\n")
}

func (f Frame) empty() bool {
	return f.Event == "" && len(f.Data) == 0
}

// Parser assembles frames from arbitrarily split chunks. The zero value is
// ready to use. A Parser is not safe for concurrent use.
type Parser struct {
	buf []byte
	cur Frame
}

// Feed consumes a chunk and returns every frame completed by it. Partial
// lines and unterminated frames are retained for the next call.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		if f, ok := p.line(string(bytes.TrimSuffix(line, []byte{'\r'}))); ok {
			frames = append(frames, f)
		}
	}

	// Keep the remainder in its own backing array so the consumed prefix
	// can be collected.
	if len(p.buf) == 0 {
		p.buf = nil
	} else {
		p.buf = append([]byte(nil), p.buf...)
	}
	return frames
}

// Flush ends the input. A trailing line without newline is processed and
// a frame that was never closed by an empty line is returned.
func (p *Parser) Flush() (Frame, bool) {
	if len(p.buf) > 0 {
		line := string(bytes.TrimSuffix(p.buf, []byte{'\r'}))
		p.buf = nil
		if f, ok := p.line(line); ok {
			return f, true
		}
	}
	if p.cur.empty() {
		return Frame{}, false
	}
	f := p.cur
	p.cur = Frame{}
	return f, true
}

// line applies one complete line to the frame under construction.
func (p *Parser) line(line string) (Frame, bool) {
	if line == "" {
		if p.cur.empty() {
			return Frame{}, false
		}
		f := p.cur
		p.cur = Frame{}
		return f, true
	}
	if line[0] == ':' {
		return Frame{}, false
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	value = strings.TrimRight(value, " \t")

	switch field {
	case "event":
		p.cur.Event = value
	case "data":
		p.cur.Data = append(p.cur.Data, value)
	}
	// id, retry and unknown fields are ignored.
	return Frame{}, false
}
