package source

import (
	"bytes"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dudu/facemesh/internal/landmark"
)

func makeFace(n int, offset float32) landmark.Face {
	f := make(landmark.Face, n)
	for i := range f {
		f[i] = landmark.Landmark{X: offset + float32(i)/1000, Y: float32(i) / 500, Z: -float32(i) / 100}
	}
	return f
}

func sampleResults() []*landmark.Result {
	return []*landmark.Result{
		{TimestampUs: 0},
		{TimestampUs: 33333, Faces: []landmark.Face{makeFace(landmark.NumLandmarks, 0.1)}},
		{TimestampUs: 66666, Faces: []landmark.Face{
			makeFace(landmark.NumLandmarksWithIrises, 0.2),
			makeFace(landmark.NumLandmarks, 0.3),
		}},
	}
}

func equalResults(a, b *landmark.Result) bool {
	if a.TimestampUs != b.TimestampUs || len(a.Faces) != len(b.Faces) {
		return false
	}
	for i := range a.Faces {
		if len(a.Faces[i]) != len(b.Faces[i]) {
			return false
		}
		for j := range a.Faces[i] {
			if a.Faces[i][j] != b.Faces[i][j] {
				return false
			}
		}
	}
	return true
}

func TestRecordingRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatProto, FormatJSONL} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, format)
			for _, r := range sampleResults() {
				if err := w.Write(r); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			r := NewReader(&buf, format)
			for i, want := range sampleResults() {
				got, err := r.Read()
				if err != nil {
					t.Fatalf("record %d: %v", i, err)
				}
				if !equalResults(got, want) {
					t.Errorf("record %d differs after round trip", i)
				}
			}
			if _, err := r.Read(); err != io.EOF {
				t.Errorf("expected io.EOF after last record, got %v", err)
			}
		})
	}
}

func TestLandmarkWireFormat(t *testing.T) {
	got := appendLandmark(nil, landmark.Landmark{X: 1, Y: 2, Z: 3})

	var want []byte
	for i, v := range []float32{1, 2, 3} {
		want = protowire.AppendTag(want, protowire.Number(i+1), protowire.Fixed32Type)
		want = protowire.AppendFixed32(want, math.Float32bits(v))
	}
	if !bytes.Equal(got, want) {
		t.Errorf("landmark encoding = %x, want %x", got, want)
	}
	if len(got) != landmarkSize {
		t.Errorf("landmark size %d, want %d", len(got), landmarkSize)
	}
}

func TestDecodeSkipsVisibilityAndPresence(t *testing.T) {
	// a NormalizedLandmark as MediaPipe writes it, with visibility=4 and presence=5
	var lm []byte
	for i, v := range []float32{0.25, 0.5, -0.1, 0.9, 0.8} {
		lm = protowire.AppendTag(lm, protowire.Number(i+1), protowire.Fixed32Type)
		lm = protowire.AppendFixed32(lm, math.Float32bits(v))
	}
	var list []byte
	for i := 0; i < landmark.NumLandmarks; i++ {
		list = protowire.AppendTag(list, listLandmarkField, protowire.BytesType)
		list = protowire.AppendBytes(list, lm)
	}
	var frame []byte
	frame = protowire.AppendTag(frame, 15, protowire.BytesType)
	frame = protowire.AppendString(frame, "unknown field")
	frame = protowire.AppendTag(frame, frameFacesField, protowire.BytesType)
	frame = protowire.AppendBytes(frame, list)

	result, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if len(result.Faces) != 1 || len(result.Faces[0]) != landmark.NumLandmarks {
		t.Fatalf("decoded %d faces", len(result.Faces))
	}
	if p := result.Faces[0][10]; p != (landmark.Landmark{X: 0.25, Y: 0.5, Z: -0.1}) {
		t.Errorf("landmark = %+v", p)
	}
}

func TestBadRecords(t *testing.T) {
	var valid bytes.Buffer
	w := NewWriter(&valid, FormatProto)
	w.Write(sampleResults()[1])
	w.Close()

	shortFace := appendFrame(nil, &landmark.Result{Faces: []landmark.Face{makeFace(10, 0)}})
	var short []byte
	short = protowire.AppendVarint(short, uint64(len(shortFace)))
	short = append(short, shortFace...)

	tests := []struct {
		name   string
		format Format
		data   []byte
	}{
		{"truncated proto", FormatProto, valid.Bytes()[:valid.Len()/2]},
		{"oversized proto", FormatProto, protowire.AppendVarint(nil, maxRecordSize+1)},
		{"short face proto", FormatProto, short},
		{"malformed json", FormatJSONL, []byte("{\"timestamp_us\": 1, \"faces\": [\n")},
		{"short face json", FormatJSONL, []byte(`{"timestamp_us":1,"faces":[[{"x":0,"y":0,"z":0}]]}` + "\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data), tt.format).Read()
			if !errors.Is(err, ErrBadRecord) {
				t.Errorf("Read returned %v, want ErrBadRecord", err)
			}
		})
	}
}

func TestJSONLSkipsBlankLines(t *testing.T) {
	data := "\n" + `{"timestamp_us":5,"faces":[]}` + "\n\n"
	r := NewReader(strings.NewReader(data), FormatJSONL)

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.TimestampUs != 5 || len(got.Faces) != 0 {
		t.Errorf("got %+v", got)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestJSONLErrorLineNumbers(t *testing.T) {
	good := `{"timestamp_us":1,"faces":[]}` + "\n"
	tests := []struct {
		name string
		data string
		want string
	}{
		{"after blank lines", "\n\n" + good + "\n{broken\n", "line 5:"},
		{"short face", good + "\n" + `{"timestamp_us":2,"faces":[[{"x":0,"y":0,"z":0}]]}` + "\n", "line 3:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.data), FormatJSONL)
			if _, err := r.Read(); err != nil {
				t.Fatalf("first Read failed: %v", err)
			}
			_, err := r.Read()
			if !errors.Is(err, ErrBadRecord) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Read returned %v, want ErrBadRecord at %q", err, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"run.pb", FormatProto, false},
		{"RUN.JSONL", FormatJSONL, false},
		{"dir/run.ndjson", FormatJSONL, false},
		{"run.csv", 0, true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, %v", tt.path, got, err)
		}
	}
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pb")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	want := sampleResults()[2]
	if err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !equalResults(got, want) {
		t.Error("record differs after file round trip")
	}
}
