package source

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dudu/facemesh/internal/landmark"
)

// ErrBadRecord is returned for recordings that cannot be decoded
var ErrBadRecord = errors.New("bad landmark record")

// Format is a recording file format
type Format int

const (
	// FormatProto is a stream of varint length-delimited FrameRecord messages
	// whose faces are MediaPipe NormalizedLandmarkList messages
	FormatProto Format = iota
	// FormatJSONL is one JSON object per line
	FormatJSONL
)

func (f Format) String() string {
	if f == FormatJSONL {
		return "jsonl"
	}
	return "pb"
}

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pb", ".bin":
		return FormatProto, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	}
	return 0, fmt.Errorf("unknown recording format %q (use .pb or .jsonl)", filepath.Ext(path))
}

// maxRecordSize bounds a single encoded frame
const maxRecordSize = 16 << 20

// Field numbers of the wire messages
const (
	frameTimestampField = 1
	frameFacesField     = 2

	listLandmarkField = 1

	landmarkXField = 1
	landmarkYField = 2
	landmarkZField = 3
)

// ResultWriter appends detection results to a recording
type ResultWriter interface {
	Write(result *landmark.Result) error
	Close() error
}

// ResultReader reads detection results back. Read returns io.EOF at the end.
type ResultReader interface {
	Read() (*landmark.Result, error)
	Close() error
}

// Create creates a recording at path in the format given by its extension
func Create(path string) (ResultWriter, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return NewWriter(f, format), nil
}

// Open opens the recording at path
func Open(path string) (ResultReader, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	return NewReader(f, format), nil
}

// NewWriter writes results in format to w. Close flushes and, if w is an
// io.Closer, closes it.
func NewWriter(w io.Writer, format Format) ResultWriter {
	bw := bufio.NewWriter(w)
	base := writerBase{bw: bw, dst: w}
	if format == FormatJSONL {
		return &jsonWriter{writerBase: base, stream: jsonAPI.BorrowStream(bw)}
	}
	return &protoWriter{writerBase: base}
}

// NewReader reads results in format from r. Close closes r if it is an io.Closer.
func NewReader(r io.Reader, format Format) ResultReader {
	br := bufio.NewReader(r)
	if format == FormatJSONL {
		return &jsonReader{src: r, br: br}
	}
	return &protoReader{src: r, br: br}
}

type writerBase struct {
	bw  *bufio.Writer
	dst io.Writer
}

func (w *writerBase) close() error {
	err := w.bw.Flush()
	if c, ok := w.dst.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func closeSource(src io.Reader) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type protoWriter struct {
	writerBase
	buf []byte
	msg []byte
}

func (w *protoWriter) Write(result *landmark.Result) error {
	w.msg = appendFrame(w.msg[:0], result)
	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(w.msg)))
	w.buf = append(w.buf, w.msg...)
	_, err := w.bw.Write(w.buf)
	return err
}

func (w *protoWriter) Close() error {
	return w.close()
}

// appendFrame encodes one FrameRecord
func appendFrame(b []byte, result *landmark.Result) []byte {
	b = protowire.AppendTag(b, frameTimestampField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(result.TimestampUs))
	for _, face := range result.Faces {
		b = protowire.AppendTag(b, frameFacesField, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(faceSize(face)))
		for _, p := range face {
			b = protowire.AppendTag(b, listLandmarkField, protowire.BytesType)
			b = protowire.AppendVarint(b, uint64(landmarkSize))
			b = appendLandmark(b, p)
		}
	}
	return b
}

// each coordinate is a 1-byte tag plus a fixed32
const landmarkSize = 3 * (1 + 4)

func faceSize(face landmark.Face) int {
	perLandmark := protowire.SizeTag(listLandmarkField) + protowire.SizeVarint(landmarkSize) + landmarkSize
	return len(face) * perLandmark
}

func appendLandmark(b []byte, p landmark.Landmark) []byte {
	b = protowire.AppendTag(b, landmarkXField, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.X))
	b = protowire.AppendTag(b, landmarkYField, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.Y))
	b = protowire.AppendTag(b, landmarkZField, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.Z))
	return b
}

type protoReader struct {
	src   io.Reader
	br    *bufio.Reader
	buf   []byte
	index int
}

func (r *protoReader) Read() (*landmark.Result, error) {
	size, err := binary.ReadUvarint(r.br)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: length: %v", ErrBadRecord, r.index, err)
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: record %d: size %d exceeds limit", ErrBadRecord, r.index, size)
	}
	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.br, r.buf); err != nil {
		return nil, fmt.Errorf("%w: record %d: truncated: %v", ErrBadRecord, r.index, err)
	}

	result, err := decodeFrame(r.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrBadRecord, r.index, err)
	}
	r.index++
	return result, nil
}

func (r *protoReader) Close() error {
	return closeSource(r.src)
}

// decodeFrame parses a FrameRecord, skipping unknown fields
func decodeFrame(b []byte) (*landmark.Result, error) {
	result := &landmark.Result{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == frameTimestampField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			result.TimestampUs = int64(v)
			b = b[n:]
		case num == frameFacesField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			face, err := decodeFace(v)
			if err != nil {
				return nil, fmt.Errorf("face %d: %w", len(result.Faces), err)
			}
			result.Faces = append(result.Faces, face)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if err := result.CheckCounts(); err != nil {
		return nil, err
	}
	return result, nil
}

// decodeFace parses a NormalizedLandmarkList
func decodeFace(b []byte) (landmark.Face, error) {
	face := make(landmark.Face, 0, landmark.NumLandmarksWithIrises)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num == listLandmarkField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			p, err := decodeLandmark(v)
			if err != nil {
				return nil, err
			}
			face = append(face, p)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return face, nil
}

// decodeLandmark parses a NormalizedLandmark; visibility and presence are skipped
func decodeLandmark(b []byte) (landmark.Landmark, error) {
	var p landmark.Landmark
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]
		if typ == protowire.Fixed32Type && num >= landmarkXField && num <= landmarkZField {
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			f := math.Float32frombits(v)
			switch num {
			case landmarkXField:
				p.X = f
			case landmarkYField:
				p.Y = f
			case landmarkZField:
				p.Z = f
			}
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return p, nil
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonRecord is one line of a JSONL recording
type jsonRecord struct {
	TimestampUs int64            `json:"timestamp_us"`
	Faces       [][]jsonLandmark `json:"faces"`
}

type jsonLandmark struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type jsonWriter struct {
	writerBase
	stream *jsoniter.Stream
	rec    jsonRecord
}

func (w *jsonWriter) Write(result *landmark.Result) error {
	w.rec.TimestampUs = result.TimestampUs
	w.rec.Faces = w.rec.Faces[:0]
	for _, face := range result.Faces {
		pts := make([]jsonLandmark, len(face))
		for i, p := range face {
			pts[i] = jsonLandmark{X: p.X, Y: p.Y, Z: p.Z}
		}
		w.rec.Faces = append(w.rec.Faces, pts)
	}

	w.stream.WriteVal(&w.rec)
	w.stream.WriteRaw("\n")
	if w.stream.Error != nil {
		return fmt.Errorf("failed to encode record: %w", w.stream.Error)
	}
	return w.stream.Flush()
}

func (w *jsonWriter) Close() error {
	jsonAPI.ReturnStream(w.stream)
	return w.close()
}

type jsonReader struct {
	src    io.Reader
	br     *bufio.Reader
	lineNo int
}

func (r *jsonReader) Read() (*landmark.Result, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if len(line) > 0 {
			r.lineNo++
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		var rec jsonRecord
		if uerr := jsonAPI.Unmarshal(line, &rec); uerr != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRecord, r.lineNo, uerr)
		}

		result := &landmark.Result{TimestampUs: rec.TimestampUs}
		for _, pts := range rec.Faces {
			face := make(landmark.Face, len(pts))
			for i, p := range pts {
				face[i] = landmark.Landmark{X: p.X, Y: p.Y, Z: p.Z}
			}
			result.Faces = append(result.Faces, face)
		}
		if cerr := result.CheckCounts(); cerr != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRecord, r.lineNo, cerr)
		}
		return result, nil
	}
}

func (r *jsonReader) Close() error {
	return closeSource(r.src)
}
