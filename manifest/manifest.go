// Package manifest handles loxvm.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "loxvm.toml"

// Manifest represents a loxvm.toml configuration.
type Manifest struct {
	VM     VMConfig     `toml:"vm" json:"vm"`
	Log    LogConfig    `toml:"log" json:"log"`
	Store  StoreConfig  `toml:"store" json:"store"`
	Server ServerConfig `toml:"server" json:"server"`

	// Dir is the directory containing the loxvm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig configures execution.
type VMConfig struct {
	Trace bool `toml:"trace" json:"trace"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" json:"path,omitempty"` // Empty logs to stderr
}

// StoreConfig selects the chunk store.
type StoreConfig struct {
	Driver string `toml:"driver" json:"driver"` // "sqlite" or "duckdb"
	DSN    string `toml:"dsn" json:"dsn"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// Default returns the configuration used when no loxvm.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Store.Driver == "" {
		m.Store.Driver = "sqlite"
	}
	if m.Store.DSN == "" {
		m.Store.DSN = filepath.Join(m.StoreDir(), "chunks.db")
	}
	if m.Server.Addr == "" {
		m.Server.Addr = "localhost:8700"
	}
}

// Load parses and validates a loxvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses and validates the configuration file at path. Relative
// paths inside it resolve against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if m.Store.DSN != "" && m.Store.DSN != ":memory:" && !filepath.IsAbs(m.Store.DSN) {
		m.Store.DSN = filepath.Join(m.Dir, m.Store.DSN)
	}

	m.applyDefaults()
	return m, nil
}

// Parse decodes and validates configuration text. Defaults that depend on
// the file's location are left unset.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a loxvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StoreDir returns the directory that holds the default sqlite database.
func (m *Manifest) StoreDir() string {
	return filepath.Join(m.Dir, ".loxvm")
}
