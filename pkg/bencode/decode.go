// Package bencode implements a lazy bencode decoder.
//
// Decode builds a flat token table over the caller's buffer and returns a
// Node referring into it. Nodes never copy the buffer: strings and raw
// ranges are sub-slices of it, so the buffer must stay alive and unmodified
// for as long as any Node derived from it is in use.
package bencode

import (
	"errors"
	"fmt"
)

// Limits applied when no option overrides them.
const (
	DefaultMaxDepth   = 100
	DefaultTokenLimit = 2000000
)

// Decode errors. They are always wrapped in a *DecodeError that carries
// the offset of the failure.
var (
	ErrStructureTooDeep = errors.New(`structure too deep`)
	ErrUnexpectedEOF    = errors.New(`unexpected end of input`)
	ErrUnexpectedByte   = errors.New(`unexpected byte`)
	ErrExpectedColon    = errors.New(`expected colon after string length`)
	ErrExpectedKey      = errors.New(`expected string as dictionary key`)
	ErrMissingValue     = errors.New(`dictionary key without value`)
	ErrInvalidInteger   = errors.New(`invalid integer`)
	ErrLeadingZero      = errors.New(`leading zero in number`)
	ErrOverflow         = errors.New(`number overflows int64`)
	ErrTooManyTokens    = errors.New(`too many tokens`)
)

// DecodeError is returned for any malformed input.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(`bencode: %v at offset %d`, e.Err, e.Offset)
}

// Unwrap ...
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Option tunes the decoder.
type Option func(o *options)

type options struct {
	maxDepth   int
	tokenLimit int
}

// WithMaxDepth limits container nesting. Values <= 0 keep the default.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// WithTokenLimit limits the total number of decoded values.
// Values <= 0 keep the default.
func WithTokenLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.tokenLimit = limit
		}
	}
}

type _Frame struct {
	token   int
	dict    bool
	wantKey bool
}

// Decode parses the first bencoded value in buf. Bytes after it are ignored.
func Decode(buf []byte, opts ...Option) (Node, error) {
	o := options{
		maxDepth:   DefaultMaxDepth,
		tokenLimit: DefaultTokenLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		pos    int
		last   int // start of the last complete token
		stack  []_Frame
		tokens []token
	)

	fail := func(offset int, err error) (Node, error) {
		return Node{}, &DecodeError{Offset: offset, Err: err}
	}

	// a value has been completed inside the current container.
	valueDone := func() {
		if top := &stack[len(stack)-1]; top.dict {
			top.wantKey = !top.wantKey
		}
	}

	for {
		if pos >= len(buf) {
			return fail(last, ErrUnexpectedEOF)
		}
		c := buf[pos]

		if c == 'e' && len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.dict && !top.wantKey {
				return fail(pos, ErrMissingValue)
			}
			stack = stack[:len(stack)-1]
			t := &tokens[top.token]
			t.end = pos + 1
			t.next = len(tokens)
			last = t.start
			pos++
			if len(stack) == 0 {
				break
			}
			valueDone()
			continue
		}

		if len(tokens) >= o.tokenLimit {
			return fail(pos, ErrTooManyTokens)
		}

		if n := len(stack); n > 0 {
			top := stack[n-1]
			if top.dict && top.wantKey && !isDigit(c) {
				return fail(pos, ErrExpectedKey)
			}
			tokens[top.token].count++
		}

		switch {
		case c == 'd' || c == 'l':
			if len(stack) >= o.maxDepth {
				return fail(pos, ErrStructureTooDeep)
			}
			kind := KindList
			if c == 'd' {
				kind = KindDict
			}
			tokens = append(tokens, token{kind: kind, start: pos})
			stack = append(stack, _Frame{
				token:   len(tokens) - 1,
				dict:    c == 'd',
				wantKey: true,
			})
			pos++
			continue

		case c == 'i':
			end := pos + 1
			for end < len(buf) && buf[end] != 'e' {
				end++
			}
			if end >= len(buf) {
				return fail(last, ErrUnexpectedEOF)
			}
			if _, err := parseInt(buf[pos+1 : end]); err != nil {
				return fail(pos, err)
			}
			tokens = append(tokens, token{
				kind:  KindInt,
				start: pos,
				end:   end + 1,
				data:  pos + 1,
				next:  len(tokens) + 1,
			})
			last, pos = pos, end+1

		case isDigit(c):
			colon := pos
			for colon < len(buf) && isDigit(buf[colon]) {
				colon++
			}
			if colon >= len(buf) {
				return fail(last, ErrUnexpectedEOF)
			}
			if buf[colon] != ':' {
				return fail(colon, ErrExpectedColon)
			}
			n, err := parseLength(buf[pos:colon])
			if err != nil {
				return fail(pos, err)
			}
			data := colon + 1
			if n > int64(len(buf)-data) {
				return fail(pos, ErrUnexpectedEOF)
			}
			tokens = append(tokens, token{
				kind:  KindString,
				start: pos,
				end:   data + int(n),
				data:  data,
				next:  len(tokens) + 1,
			})
			last, pos = pos, data+int(n)

		default:
			return fail(pos, ErrUnexpectedByte)
		}

		if len(stack) == 0 {
			break
		}
		valueDone()
	}

	return Node{doc: &document{buf: buf, tokens: tokens}}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// parseInt parses the body of an `i...e` token.
func parseInt(b []byte) (int64, error) {
	neg := len(b) > 0 && b[0] == '-'
	digits := b
	if neg {
		digits = b[1:]
	}
	if len(digits) == 0 {
		return 0, ErrInvalidInteger
	}
	if digits[0] == '0' && (len(digits) > 1 || neg) {
		return 0, ErrLeadingZero
	}
	const limit = uint64(1) << 63
	var v uint64
	for _, c := range digits {
		if !isDigit(c) {
			return 0, ErrInvalidInteger
		}
		if v > limit/10 {
			return 0, ErrOverflow
		}
		v = v*10 + uint64(c-'0')
		if v > limit {
			return 0, ErrOverflow
		}
	}
	if neg {
		return -int64(v), nil
	}
	if v == limit {
		return 0, ErrOverflow
	}
	return int64(v), nil
}

// parseLength parses a string length prefix. The caller guarantees b is
// a non-empty run of digits.
func parseLength(b []byte) (int64, error) {
	if len(b) > 1 && b[0] == '0' {
		return 0, ErrLeadingZero
	}
	return parseInt(b)
}
