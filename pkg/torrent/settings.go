package torrent

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/movsb/torrentinfo/pkg/bencode"
	"gopkg.in/yaml.v3"
)

// Settings are the limits and toggles the parser reads.
type Settings struct {
	// Decoder limits.
	MaxDepth   int `yaml:"max_depth"`
	TokenLimit int `yaml:"token_limit"`

	MaxPieces int `yaml:"max_pieces"`
	MaxFiles  int `yaml:"max_files"`

	// Reduce every v2 piece layer and compare it with its pieces root.
	VerifyPieceLayers bool `yaml:"verify_piece_layers"`
}

// DefaultSettings ...
func DefaultSettings() Settings {
	return Settings{
		MaxDepth:          bencode.DefaultMaxDepth,
		TokenLimit:        bencode.DefaultTokenLimit,
		MaxPieces:         0x200000,
		MaxFiles:          1000000,
		VerifyPieceLayers: true,
	}
}

// LoadSettings reads YAML settings. Keys that are absent keep their
// default values.
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf(`settings: %w`, err)
	}
	return s, nil
}

// LoadSettingsFile ...
func LoadSettingsFile(path string) (Settings, error) {
	fp, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf(`settings: %w`, err)
	}
	defer fp.Close()
	return LoadSettings(fp)
}

// Option configures Parse, Load and ParseFile.
type Option func(o *options)

type options struct {
	settings Settings
	logger   *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		settings: DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSettings ...
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithLogger sets the logger that receives debug messages about
// ignored optional fields.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
