// Package waveform holds simulated probe waveforms and collects them per
// (RX group, TX group) over a sweep.
package waveform

import (
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
)

// Waveform is a probe voltage over time, in picoseconds and volts.
type Waveform struct {
	Time    []float64
	Voltage []float64
}

func (w Waveform) Len() int { return min(len(w.Time), len(w.Voltage)) }

// Differential returns pos - neg sample by sample on the positive time base,
// truncated to the shorter leg.
func Differential(pos, neg Waveform) Waveform {
	n := min(pos.Len(), neg.Len())
	out := Waveform{
		Time:    make([]float64, n),
		Voltage: make([]float64, n),
	}
	copy(out.Time, pos.Time[:n])
	for i := 0; i < n; i++ {
		out.Voltage[i] = pos.Voltage[i] - neg.Voltage[i]
	}
	return out
}

// Entry is one stored waveform on an RX group.
type Entry struct {
	Tx       topology.Group
	Waveform Waveform
}

type rxWaveforms struct {
	rx      topology.Group
	entries []Entry
	byTx    map[topology.Key]int
}

// Aggregator collects waveforms keyed by RX group identity, then by TX
// group identity, in arrival order.
type Aggregator struct {
	byRx  map[topology.Key]*rxWaveforms
	order []topology.Key
}

func NewAggregator() *Aggregator {
	return &Aggregator{byRx: make(map[topology.Key]*rxWaveforms)}
}

// Reset drops every stored waveform.
func (a *Aggregator) Reset() {
	clear(a.byRx)
	a.order = a.order[:0]
}

// Store files the probe results of one scenario. results is keyed by the
// trimmed port sequence of res. A differential RX group is stored only when
// both legs were probed.
func (a *Aggregator) Store(res *prune.Result, tx topology.Group, results map[int]Waveform) int {
	stored := 0
	for _, rx := range res.Topology.RXs() {
		var (
			w  Waveform
			ok bool
		)
		if rx.IsDifferential() {
			pos, okPos := results[rx.Positive().Sequence]
			neg, okNeg := results[rx.Negative().Sequence]
			if ok = okPos && okNeg; ok {
				w = Differential(pos, neg)
			}
		} else {
			w, ok = results[rx.Positive().Sequence]
		}
		if !ok {
			continue
		}
		a.Put(rx, tx, w)
		stored++
	}
	return stored
}

// Put stores w under (rx, tx), replacing an earlier waveform for the pair.
func (a *Aggregator) Put(rx, tx topology.Group, w Waveform) {
	key := rx.Key()
	set, ok := a.byRx[key]
	if !ok {
		set = &rxWaveforms{rx: rx, byTx: make(map[topology.Key]int)}
		a.byRx[key] = set
		a.order = append(a.order, key)
	}

	if i, ok := set.byTx[tx.Key()]; ok {
		set.entries[i].Waveform = w
		return
	}
	set.byTx[tx.Key()] = len(set.entries)
	set.entries = append(set.entries, Entry{Tx: tx, Waveform: w})
}

// Get returns the waveform stored for (rx, tx).
func (a *Aggregator) Get(rx, tx topology.Key) (Waveform, bool) {
	set, ok := a.byRx[rx]
	if !ok {
		return Waveform{}, false
	}
	i, ok := set.byTx[tx]
	if !ok {
		return Waveform{}, false
	}
	return set.entries[i].Waveform, true
}

// Entries returns the waveforms stored on rx in arrival order.
func (a *Aggregator) Entries(rx topology.Key) []Entry {
	set, ok := a.byRx[rx]
	if !ok {
		return nil
	}
	return set.entries
}

// RxKeys lists the RX groups with at least one waveform, in arrival order.
func (a *Aggregator) RxKeys() []topology.Key {
	return append([]topology.Key(nil), a.order...)
}

// Len is the number of stored waveforms.
func (a *Aggregator) Len() int {
	n := 0
	for _, set := range a.byRx {
		n += len(set.entries)
	}
	return n
}
