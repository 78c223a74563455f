// Package stream frames a chat answer as a sources preamble followed by the
// raw answer tokens, and parses that framing back on the client side.
//
// Two framings exist. Length-prefixed writes a 4-byte big-endian length, the
// JSON sources array and then the tokens. Sentinel writes the JSON, the
// Separator and then the tokens; underscores inside the JSON are written as
// \u005f so the separator can never occur before its intended position.
package stream

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spetr/ragchat/pkg/types"
)

// Framing selects how the sources preamble is delimited from the answer.
type Framing string

const (
	// FramingLengthPrefixed prefixes the sources JSON with its length.
	FramingLengthPrefixed Framing = "length-prefixed"
	// FramingSentinel terminates the sources JSON with Separator.
	FramingSentinel Framing = "sentinel"
	// FramingNone writes tokens only. Used for pass-through chat modes.
	FramingNone Framing = "none"
)

// Separator terminates the sources preamble in sentinel framing.
const Separator = "_--_SEPARATOR_--_"

// Header is the HTTP header used to request and report the framing.
const Header = "X-Stream-Framing"

// maxHeaderSize bounds the length prefix a parser accepts.
const maxHeaderSize = 16 << 20

var (
	// ErrIncompleteHeader is returned when a stream ends before its sources
	// preamble is complete.
	ErrIncompleteHeader = errors.New("stream ended before sources header was complete")

	// ErrMalformedHeader is returned when the sources preamble cannot be decoded.
	ErrMalformedHeader = errors.New("malformed sources header")

	// ErrSourcesWritten is returned when WriteSources is called twice.
	ErrSourcesWritten = errors.New("sources already written")
)

// ParseFraming validates a framing name. An empty name yields def.
func ParseFraming(name string, def Framing) (Framing, error) {
	switch Framing(name) {
	case "":
		return def, nil
	case FramingLengthPrefixed, FramingSentinel:
		return Framing(name), nil
	default:
		return "", types.NewInvalidRequest(Header, fmt.Sprintf("unknown framing %q (valid: length-prefixed, sentinel)", name))
	}
}

type flusher interface {
	Flush()
}

// Writer writes one framed answer. It flushes the underlying writer after
// every write when it supports Flush (http.ResponseWriter does).
type Writer struct {
	w              io.Writer
	framing        Framing
	sourcesWritten bool
}

// NewWriter creates a Writer with the given framing.
func NewWriter(w io.Writer, framing Framing) *Writer {
	return &Writer{w: w, framing: framing}
}

// Framing returns the framing of the writer.
func (w *Writer) Framing() Framing {
	return w.framing
}

// WriteSources writes the sources preamble. A nil or empty list is written
// as []. For FramingNone it writes nothing.
func (w *Writer) WriteSources(docs []types.Document) error {
	if w.sourcesWritten {
		return ErrSourcesWritten
	}
	w.sourcesWritten = true

	if w.framing == FramingNone {
		return nil
	}

	header, err := EncodeSources(docs, w.framing)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(header); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WriteToken forwards an answer fragment as received.
func (w *Writer) WriteToken(token string) error {
	if token == "" {
		return nil
	}
	if _, err := io.WriteString(w.w, token); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if f, ok := w.w.(flusher); ok {
		f.Flush()
	}
}

// EncodeSources returns the complete preamble for docs in the given framing.
func EncodeSources(docs []types.Document, framing Framing) ([]byte, error) {
	if docs == nil {
		docs = []types.Document{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sources: %w", err)
	}

	switch framing {
	case FramingLengthPrefixed:
		out := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(out, uint32(len(data)))
		copy(out[4:], data)
		return out, nil
	case FramingSentinel:
		// '_' only occurs inside JSON strings, where \u005f decodes to the same value.
		escaped := bytes.ReplaceAll(data, []byte("_"), []byte(`\u005f`))
		return append(escaped, Separator...), nil
	case FramingNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", framing)
	}
}

// Parser incrementally decodes a framed stream. Feed it chunks as they
// arrive, split at arbitrary byte positions.
type Parser struct {
	framing    Framing
	buf        []byte
	headerDone bool
	sources    []types.Document
}

// NewParser creates a parser for the given framing.
func NewParser(framing Framing) *Parser {
	p := &Parser{framing: framing}
	if framing == FramingNone {
		p.headerDone = true
	}
	return p
}

// Feed consumes a chunk and returns the answer text that became available.
// Until the header is complete, data is buffered and no text is returned.
func (p *Parser) Feed(chunk []byte) (string, error) {
	if p.headerDone {
		return string(chunk), nil
	}
	p.buf = append(p.buf, chunk...)

	var rest []byte
	switch p.framing {
	case FramingLengthPrefixed:
		if len(p.buf) < 4 {
			return "", nil
		}
		n := binary.BigEndian.Uint32(p.buf)
		if n > maxHeaderSize {
			return "", fmt.Errorf("%w: length %d exceeds limit", ErrMalformedHeader, n)
		}
		if uint32(len(p.buf)-4) < n {
			return "", nil
		}
		if err := p.decodeSources(p.buf[4 : 4+n]); err != nil {
			return "", err
		}
		rest = p.buf[4+n:]
	case FramingSentinel:
		idx := bytes.Index(p.buf, []byte(Separator))
		if idx < 0 {
			return "", nil
		}
		if err := p.decodeSources(p.buf[:idx]); err != nil {
			return "", err
		}
		rest = p.buf[idx+len(Separator):]
	default:
		return "", fmt.Errorf("unknown framing %q", p.framing)
	}

	p.headerDone = true
	text := string(rest)
	p.buf = nil
	return text, nil
}

func (p *Parser) decodeSources(data []byte) error {
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if docs == nil {
		docs = []types.Document{}
	}
	p.sources = docs
	return nil
}

// HeaderComplete reports whether the sources preamble has been decoded.
func (p *Parser) HeaderComplete() bool {
	return p.headerDone
}

// Sources returns the decoded sources. It is nil until HeaderComplete.
func (p *Parser) Sources() []types.Document {
	return p.sources
}

// Close reports ErrIncompleteHeader when the stream ended too early.
func (p *Parser) Close() error {
	if !p.headerDone {
		return ErrIncompleteHeader
	}
	return nil
}

// Decode reads a whole framed stream from r. onSources is called once, as
// soon as the preamble is decoded; onText is called for every piece of
// answer text.
func Decode(r io.Reader, framing Framing, onSources func([]types.Document), onText func(string)) error {
	p := NewParser(framing)
	reported := false
	buf := make([]byte, 4096)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			text, err := p.Feed(buf[:n])
			if err != nil {
				return err
			}
			if p.HeaderComplete() && !reported {
				reported = true
				if onSources != nil && framing != FramingNone {
					onSources(p.Sources())
				}
			}
			if text != "" && onText != nil {
				onText(text)
			}
		}
		if readErr == io.EOF {
			return p.Close()
		}
		if readErr != nil {
			return readErr
		}
	}
}
