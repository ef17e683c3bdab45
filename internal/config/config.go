// Package config holds every tunable of the facemesh tools.
//
// Values are resolved in three layers: Default, then FACEMESH_* environment
// variables (optionally loaded from a .env file), then command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes the environment variable of every setting
const EnvPrefix = "FACEMESH_"

// Surface kinds
const (
	SurfaceCV  = "cv"
	SurfaceGPU = "gpu"
)

// Tensor layouts of the mesh model input
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Config holds the shared configuration of all subcommands
type Config struct {
	// Camera
	CameraID     int
	CameraWidth  int
	CameraHeight int
	CameraFPS    int
	Mirror       bool

	// ONNX Runtime
	ORTLibrary string
	CoreML     bool

	// Face box detector (SCRFD). Empty path treats the whole frame as one face.
	DetectorModel string
	DetectionSize int
	DetectionConf float32
	DetectionNMS  float32
	MaxFaces      int
	ROIScale      float32

	// Face mesh regression model
	MeshModel     string
	MeshInput     string
	MeshOutput    string
	MeshScore     string
	MeshInputSize int
	MeshLayout    string
	MeshMinScore  float32

	// Rendering
	Surface     string
	Batch       bool
	Tesselation string
	ShowTiming  bool
	Realtime    bool
	QueueSize   int

	// Logging
	LogLevel string
	LogFile  string
	NoColor  bool
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		CameraID:     0,
		CameraWidth:  1280,
		CameraHeight: 720,
		CameraFPS:    30,
		Mirror:       true,

		ORTLibrary: defaultORTLibrary(),

		DetectionSize: 640,
		DetectionConf: 0.5,
		DetectionNMS:  0.4,
		MaxFaces:      1,
		ROIScale:      1.5,

		MeshModel:     "models/face_landmark.onnx",
		MeshInputSize: 192,
		MeshLayout:    LayoutNHWC,
		MeshMinScore:  0.5,

		Surface:    SurfaceCV,
		ShowTiming: true,
		Realtime:   true,
		QueueSize:  2,

		LogLevel: "info",
	}
}

func defaultORTLibrary() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "lib/onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// setting binds one Config field to a flag and an environment variable
type setting struct {
	flag  string
	usage string
	ptr   func(c *Config) any
}

var settings = []setting{
	{"camera", "camera device index", func(c *Config) any { return &c.CameraID }},
	{"camera-width", "requested capture width", func(c *Config) any { return &c.CameraWidth }},
	{"camera-height", "requested capture height", func(c *Config) any { return &c.CameraHeight }},
	{"fps", "requested capture frame rate", func(c *Config) any { return &c.CameraFPS }},
	{"mirror", "mirror camera frames horizontally (front-facing camera)", func(c *Config) any { return &c.Mirror }},

	{"ort-lib", "path to the ONNX Runtime shared library", func(c *Config) any { return &c.ORTLibrary }},
	{"coreml", "try the CoreML execution provider", func(c *Config) any { return &c.CoreML }},

	{"detector", "SCRFD face detector model (empty: whole frame is one face)", func(c *Config) any { return &c.DetectorModel }},
	{"det-size", "detector input size", func(c *Config) any { return &c.DetectionSize }},
	{"det-conf", "detector confidence threshold", func(c *Config) any { return &c.DetectionConf }},
	{"det-nms", "detector NMS IoU threshold", func(c *Config) any { return &c.DetectionNMS }},
	{"max-faces", "maximum number of faces per frame", func(c *Config) any { return &c.MaxFaces }},
	{"roi-scale", "face box enlargement before mesh regression", func(c *Config) any { return &c.ROIScale }},

	{"mesh", "face mesh landmark model", func(c *Config) any { return &c.MeshModel }},
	{"mesh-input", "mesh model input tensor (empty: first input)", func(c *Config) any { return &c.MeshInput }},
	{"mesh-output", "mesh model landmark tensor (empty: first output)", func(c *Config) any { return &c.MeshOutput }},
	{"mesh-score", "mesh model face score tensor (empty: no score)", func(c *Config) any { return &c.MeshScore }},
	{"mesh-size", "mesh model input size", func(c *Config) any { return &c.MeshInputSize }},
	{"mesh-layout", "mesh model input layout: nhwc or nchw", func(c *Config) any { return &c.MeshLayout }},
	{"mesh-min-score", "drop faces scored below this", func(c *Config) any { return &c.MeshMinScore }},

	{"surface", "drawing surface: cv or gpu", func(c *Config) any { return &c.Surface }},
	{"batch", "draw each connection group with a single call", func(c *Config) any { return &c.Batch }},
	{"tesselation", "triangle file (OBJ or index triples) replacing the built-in tessellation", func(c *Config) any { return &c.Tesselation }},
	{"timing", "show per-stage timing on the surface", func(c *Config) any { return &c.ShowTiming }},
	{"realtime", "pace replayed frames by their timestamps", func(c *Config) any { return &c.Realtime }},
	{"queue", "frames buffered between the source and the surface", func(c *Config) any { return &c.QueueSize }},

	{"log-level", "log level: debug, info, warn, error", func(c *Config) any { return &c.LogLevel }},
	{"log-file", "also write logs to this rotating file", func(c *Config) any { return &c.LogFile }},
	{"no-color", "disable colored log output", func(c *Config) any { return &c.NoColor }},
}

// EnvName returns the environment variable for a flag name
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// BindFlags registers every setting on fs, using the current values of c
// as defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		usage := fmt.Sprintf("%s [%s]", s.usage, EnvName(s.flag))
		switch p := s.ptr(c).(type) {
		case *string:
			fs.StringVar(p, s.flag, *p, usage)
		case *int:
			fs.IntVar(p, s.flag, *p, usage)
		case *bool:
			fs.BoolVar(p, s.flag, *p, usage)
		case *float32:
			fs.Float32Var(p, s.flag, *p, usage)
		}
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv sets every field whose flag was not given on the command line from
// its environment variable. fs must be the flag set c was bound to, so that
// values go through the flag's own parser; it may be nil, in which case all
// variables apply.
func (c *Config) ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, s := range settings {
		if fs != nil && fs.Changed(s.flag) {
			continue
		}
		name := EnvName(s.flag)
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)

		var err error
		if fs != nil && fs.Lookup(s.flag) != nil {
			err = fs.Set(s.flag, raw)
		} else {
			err = set(s.ptr(c), raw)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func set(ptr any, raw string) error {
	switch p := ptr.(type) {
	case *string:
		*p = raw
	case *int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*p = v
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*p = v
	case *float32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return err
		}
		*p = float32(v)
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.CameraID >= 0, "camera index must not be negative, got %d", c.CameraID)
	check(c.CameraWidth > 0 && c.CameraHeight > 0, "camera size must be positive, got %dx%d", c.CameraWidth, c.CameraHeight)
	check(c.CameraFPS > 0, "fps must be positive, got %d", c.CameraFPS)

	check(c.DetectionSize > 0 && c.DetectionSize%32 == 0, "det-size must be a positive multiple of 32, got %d", c.DetectionSize)
	check(c.DetectionConf > 0 && c.DetectionConf < 1, "det-conf must be in (0,1), got %v", c.DetectionConf)
	check(c.DetectionNMS > 0 && c.DetectionNMS <= 1, "det-nms must be in (0,1], got %v", c.DetectionNMS)
	check(c.MaxFaces > 0, "max-faces must be positive, got %d", c.MaxFaces)
	check(c.ROIScale >= 1, "roi-scale must be at least 1, got %v", c.ROIScale)

	check(c.MeshInputSize > 0, "mesh-size must be positive, got %d", c.MeshInputSize)
	check(c.MeshLayout == LayoutNHWC || c.MeshLayout == LayoutNCHW, "mesh-layout must be %s or %s, got %q", LayoutNHWC, LayoutNCHW, c.MeshLayout)
	check(c.MeshMinScore >= 0 && c.MeshMinScore < 1, "mesh-min-score must be in [0,1), got %v", c.MeshMinScore)

	check(c.Surface == SurfaceCV || c.Surface == SurfaceGPU, "surface must be %s or %s, got %q", SurfaceCV, SurfaceGPU, c.Surface)
	check(c.QueueSize > 0, "queue must be positive, got %d", c.QueueSize)

	return errors.Join(errs...)
}
