// Package config reads the electrical and run settings of a channel check.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/linmingchih/channel-check-tool-v2/internal/consts"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

// ErrMissingField reports a required setting that is absent or unparseable.
var ErrMissingField = errors.New("missing or invalid setting")

const (
	EnvThresholdDB    = "CCT_THRESHOLD_DB"
	EnvCircuitVersion = "CCT_CIRCUIT_VERSION"
	EnvWorkdir        = "CCT_WORKDIR"
)

// Tx is the transmitter electrical configuration. Times are in seconds.
type Tx struct {
	VHigh        float64
	RiseTime     float64
	UnitInterval float64
	Resistance   float64
	Capacitance  float64
}

// Rx is the receiver termination.
type Rx struct {
	Resistance  float64
	Capacitance float64
}

// Run holds the transient settings in seconds.
type Run struct {
	Step float64
	Stop float64
}

type Options struct {
	CircuitVersion string
	ThresholdDB    *float64
	Workdir        string
}

// Settings is the fully parsed configuration.
type Settings struct {
	Tx      Tx
	Rx      Rx
	Run     Run
	Options Options
}

// File mirrors the settings document. Values are SPICE style strings such as
// "0.8V", "30ps" or "1.8pF".
type File struct {
	Tx struct {
		VHigh         string `yaml:"vhigh" json:"vhigh"`
		RiseTime      string `yaml:"rise_time" json:"rise_time"`
		UnitInterval  string `yaml:"unit_interval" json:"unit_interval"`
		TxResistance  string `yaml:"tx_resistance" json:"tx_resistance"`
		TxCapacitance string `yaml:"tx_capacitance" json:"tx_capacitance"`
	} `yaml:"tx" json:"tx"`
	Rx struct {
		RxResistance  string `yaml:"rx_resistance" json:"rx_resistance"`
		RxCapacitance string `yaml:"rx_capacitance" json:"rx_capacitance"`
	} `yaml:"rx" json:"rx"`
	Run struct {
		TransientStep string `yaml:"transient_step" json:"transient_step"`
		TransientStop string `yaml:"transient_stop" json:"transient_stop"`
	} `yaml:"run" json:"run"`
	Options struct {
		CircuitVersion string   `yaml:"circuit_version" json:"circuit_version"`
		ThresholdDB    *float64 `yaml:"threshold_db" json:"threshold_db"`
		Workdir        string   `yaml:"workdir" json:"workdir"`
	} `yaml:"options" json:"options"`
}

// NewTx builds a Tx from setting strings. Every field is required.
func NewTx(vhigh, riseTime, unitInterval, resistance, capacitance string) (Tx, error) {
	var (
		tx  Tx
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"vhigh", vhigh, &tx.VHigh},
		{"rise_time", riseTime, &tx.RiseTime},
		{"unit_interval", unitInterval, &tx.UnitInterval},
		{"tx_resistance", resistance, &tx.Resistance},
		{"tx_capacitance", capacitance, &tx.Capacitance},
	}
	for _, f := range fields {
		if *f.dst, err = required("tx", f.name, f.raw); err != nil {
			return Tx{}, err
		}
	}
	if tx.UnitInterval <= 0 {
		return Tx{}, fmt.Errorf("%w: tx.unit_interval must be positive", ErrMissingField)
	}
	return tx, nil
}

// NewRx builds an Rx from setting strings. Both fields are required.
func NewRx(resistance, capacitance string) (Rx, error) {
	r, err := required("rx", "rx_resistance", resistance)
	if err != nil {
		return Rx{}, err
	}
	c, err := required("rx", "rx_capacitance", capacitance)
	if err != nil {
		return Rx{}, err
	}
	return Rx{Resistance: r, Capacitance: c}, nil
}

// NewRun builds run settings, falling back to 100ps / 3ns when empty.
func NewRun(step, stop string) (Run, error) {
	if strings.TrimSpace(step) == "" {
		step = consts.DefaultTransientStep
	}
	if strings.TrimSpace(stop) == "" {
		stop = consts.DefaultTransientStop
	}

	s, err := required("run", "transient_step", step)
	if err != nil {
		return Run{}, err
	}
	e, err := required("run", "transient_stop", stop)
	if err != nil {
		return Run{}, err
	}
	if s <= 0 || e <= s {
		return Run{}, fmt.Errorf("%w: run needs 0 < transient_step < transient_stop", ErrMissingField)
	}
	return Run{Step: s, Stop: e}, nil
}

func required(section, name, raw string) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: %s.%s", ErrMissingField, section, name)
	}
	v, err := util.ParseValue(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s: %v", ErrMissingField, section, name, err)
	}
	return v, nil
}

// Parse converts a settings document (YAML, or JSON) into Settings.
func Parse(data []byte) (Settings, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return f.Settings()
}

// Settings validates the document and converts it.
func (f File) Settings() (Settings, error) {
	tx, err := NewTx(f.Tx.VHigh, f.Tx.RiseTime, f.Tx.UnitInterval, f.Tx.TxResistance, f.Tx.TxCapacitance)
	if err != nil {
		return Settings{}, err
	}
	rx, err := NewRx(f.Rx.RxResistance, f.Rx.RxCapacitance)
	if err != nil {
		return Settings{}, err
	}
	run, err := NewRun(f.Run.TransientStep, f.Run.TransientStop)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Tx:  tx,
		Rx:  rx,
		Run: run,
		Options: Options{
			CircuitVersion: strings.TrimSpace(f.Options.CircuitVersion),
			ThresholdDB:    f.Options.ThresholdDB,
			Workdir:        f.Options.Workdir,
		},
	}, nil
}

// Load reads the settings file at path, then applies .env and environment
// overrides.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return Settings{}, err
	}
	if err := s.ApplyEnv(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadDotEnv loads path into the environment if it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// ApplyEnv overrides options from CCT_* environment variables.
func (s *Settings) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvThresholdDB); ok {
		v = strings.TrimSpace(v)
		switch strings.ToLower(v) {
		case "", "none", "off":
			s.Options.ThresholdDB = nil
		default:
			db, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrMissingField, EnvThresholdDB, v)
			}
			s.Options.ThresholdDB = &db
		}
	}
	if v, ok := os.LookupEnv(EnvCircuitVersion); ok && strings.TrimSpace(v) != "" {
		s.Options.CircuitVersion = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvWorkdir); ok && strings.TrimSpace(v) != "" {
		s.Options.Workdir = strings.TrimSpace(v)
	}
	return nil
}

// CircuitVersion resolves the circuit version: explicit value, then the
// metadata hint, then the default.
func CircuitVersion(explicit, metadata string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := strings.TrimSpace(metadata); v != "" {
		return v
	}
	return consts.DefaultCircuitVersion
}

// UnitIntervalPS returns the unit interval in picoseconds.
func (t Tx) UnitIntervalPS() float64 {
	return t.UnitInterval * consts.SecondsToPicoseconds
}
