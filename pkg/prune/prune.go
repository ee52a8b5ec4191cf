// Package prune decides, per transmitter, which ports of a large channel
// network a scenario has to keep.
package prune

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/linmingchih/channel-check-tool-v2/internal/consts"
	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
)

var (
	// ErrNotConfigured is returned when TX or RX settings are missing.
	ErrNotConfigured = errors.New("tx and rx configurations must be set")

	// ErrNoNetwork is logged once when a threshold is set without a network.
	ErrNoNetwork = errors.New("no channel network available")
)

// Stats summarizes one prune result.
type Stats struct {
	TxLabel           string
	ThresholdDB       *float64
	KeptPortCount     int
	TotalPortCount    int
	KeptRxPortCount   int
	TotalRxPortCount  int
	KeptRxGroupCount  int
	TotalRxGroupCount int
	TouchstonePath    string
}

// Result is the port subset one TX scenario simulates.
type Result struct {
	KeptSequences  []int         // original sequences, ascending
	Ports          []port.Record // kept ports renumbered 1..K
	Topology       *topology.Topology
	TouchstonePath string
	Tx             config.Tx
	Rx             config.Rx
	Stats          Stats

	// Configured is set when the result was computed with both TX and RX
	// settings in place.
	Configured bool
}

// OriginalSequence maps a trimmed sequence back to the full network.
func (r *Result) OriginalSequence(trimmed int) (int, bool) {
	if trimmed < 1 || trimmed > len(r.KeptSequences) {
		return 0, false
	}
	return r.KeptSequences[trimmed-1], true
}

// Config wires an Engine.
type Config struct {
	Catalog        *port.Catalog
	Network        *network.Network // nil disables pruning
	TouchstonePath string
	Workdir        string
	Logger         logr.Logger
}

// Engine computes and memoizes prune results keyed by TX identity.
type Engine struct {
	catalog        *port.Catalog
	base           *topology.Topology
	network        *network.Network
	touchstonePath string
	trimDir        string
	log            logr.Logger

	threshold *float64
	tx        *config.Tx
	rx        *config.Rx

	cache  map[topology.Key]*Result
	warned bool
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Engine{
		catalog:        cfg.Catalog,
		base:           topology.Classify(cfg.Catalog.Records),
		network:        cfg.Network,
		touchstonePath: cfg.TouchstonePath,
		trimDir:        filepath.Join(cfg.Workdir, consts.TrimmedTouchstoneDir),
		log:            log.WithName("prune"),
		cache:          make(map[topology.Key]*Result),
	}
}

// Topology is the classification of the full port list.
func (e *Engine) Topology() *topology.Topology { return e.base }

func (e *Engine) Threshold() *float64 { return e.threshold }

// SetThreshold sets the pruning threshold in dB (nil disables pruning).
func (e *Engine) SetThreshold(db *float64) {
	if db != nil {
		v := *db
		db = &v
	}
	e.threshold = db
	e.Invalidate()
}

func (e *Engine) SetTx(tx config.Tx) {
	e.tx = &tx
	e.Invalidate()
}

// SetRx sets the RX termination. The TX configuration has to be set first.
func (e *Engine) SetRx(rx config.Rx) error {
	if e.tx == nil {
		return fmt.Errorf("%w: set tx before rx", ErrNotConfigured)
	}
	e.rx = &rx
	e.Invalidate()
	return nil
}

// Configured reports whether both TX and RX settings are present.
func (e *Engine) Configured() bool { return e.tx != nil && e.rx != nil }

// Invalidate drops every memoized result.
func (e *Engine) Invalidate() {
	clear(e.cache)
}

// Compute returns the prune result for tx, computing it on first use.
func (e *Engine) Compute(tx topology.Group) (*Result, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}

	key := tx.Key()
	if res, ok := e.cache[key]; ok {
		return res, nil
	}

	res, err := e.compute(tx)
	if err != nil {
		return nil, fmt.Errorf("pruning for %s: %w", tx.Label(), err)
	}
	e.cache[key] = res

	e.log.V(1).Info("prune result",
		"tx", res.Stats.TxLabel,
		"kept", res.Stats.KeptPortCount,
		"total", res.Stats.TotalPortCount,
		"touchstone", res.TouchstonePath)
	return res, nil
}

func (e *Engine) compute(tx topology.Group) (*Result, error) {
	kept := make(map[int]bool)
	for _, seq := range e.controllerSequences() {
		kept[seq] = true
	}

	if e.threshold != nil && e.network == nil && !e.warned {
		e.log.Error(ErrNoNetwork, "pruning disabled for this run", "threshold_db", *e.threshold)
		e.warned = true
	}

	pruning := e.threshold != nil && e.network != nil
	if !pruning {
		for _, r := range e.catalog.Records {
			kept[r.Sequence] = true
		}
	} else {
		txIdx := indices(tx.Sequences())
		for _, rx := range e.base.RXs() {
			if e.keepRx(rx, tx, txIdx) {
				for _, seq := range rx.Sequences() {
					kept[seq] = true
				}
			}
		}
		for _, seq := range e.controllerSequences() {
			kept[seq] = true
		}
	}

	sequences := make([]int, 0, len(kept))
	for seq := range kept {
		sequences = append(sequences, seq)
	}
	sort.Ints(sequences)

	trimmed, err := e.catalog.Trim(sequences)
	if err != nil {
		return nil, err
	}
	topo := topology.Classify(trimmed)

	path := e.touchstonePath
	if pruning && topo.RxGroupCount() < e.base.RxGroupCount() {
		path, err = e.export(tx, sequences)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		KeptSequences:  sequences,
		Ports:          trimmed,
		Topology:       topo,
		TouchstonePath: path,
		Tx:             *e.tx,
		Rx:             *e.rx,
		Configured:     true,
		Stats: Stats{
			TxLabel:           tx.Label(),
			ThresholdDB:       e.threshold,
			KeptPortCount:     len(sequences),
			TotalPortCount:    e.catalog.Len(),
			KeptRxPortCount:   topo.RxPortCount(),
			TotalRxPortCount:  e.base.RxPortCount(),
			KeptRxGroupCount:  topo.RxGroupCount(),
			TotalRxGroupCount: e.base.RxGroupCount(),
			TouchstonePath:    path,
		},
	}, nil
}

// keepRx keeps the TX's own partner unconditionally, any other RX group
// only when its peak coupling from the TX legs reaches the threshold.
func (e *Engine) keepRx(rx, tx topology.Group, txIdx []int) bool {
	if expected, ok := e.base.ExpectedTx(rx); ok && expected.Key() == tx.Key() {
		return true
	}

	peak := e.network.PeakMagnitudeDB(rx.Sequences()[0]-1, txIdx)
	for _, seq := range rx.Sequences()[1:] {
		if db := e.network.PeakMagnitudeDB(seq-1, txIdx); db > peak {
			peak = db
		}
	}
	return peak >= *e.threshold
}

func (e *Engine) controllerSequences() []int {
	var seqs []int
	for _, r := range e.catalog.Records {
		if r.Role == port.RoleController {
			seqs = append(seqs, r.Sequence)
		}
	}
	return seqs
}

func (e *Engine) export(tx topology.Group, sequences []int) (string, error) {
	sub, err := e.network.Subnetwork(indices(sequences))
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.trimDir, TrimmedName(e.touchstonePath, tx.Label(), len(sequences)))
	if err := sub.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}

func indices(sequences []int) []int {
	idx := make([]int, len(sequences))
	for i, seq := range sequences {
		idx[i] = seq - 1
	}
	return idx
}

// TrimmedName is "<stem>_<label>_<N>p.s<N>p".
func TrimmedName(original, label string, ports int) string {
	base := filepath.Base(original)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s_%dp.s%dp", stem, SanitizeLabel(label), ports, ports)
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SanitizeLabel makes a label safe for file names; empty results become "tx".
func SanitizeLabel(label string) string {
	s := strings.Trim(unsafeLabel.ReplaceAllString(label, "_"), "_")
	if s == "" {
		return "tx"
	}
	return s
}
