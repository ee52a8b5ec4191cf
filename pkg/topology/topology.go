// Package topology groups port records into transmitter and receiver
// groups, single-ended or differential.
package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
)

type Direction int

const (
	TX Direction = iota
	RX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

type Kind int

const (
	KindSingle Kind = iota
	KindDifferential
)

func (k Kind) String() string {
	if k == KindDifferential {
		return "diff"
	}
	return "single"
}

// Key identifies a group across renumbering: the net for single-ended
// groups, the sorted net pair joined by "::" for differential groups.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string { return k.Kind.String() + ":" + k.ID }

// Group is a single port or a (positive, negative) pair tagged TX or RX.
type Group struct {
	Kind      Kind
	Direction Direction
	Ports     []port.Record // one entry, or positive then negative
}

func (g Group) Positive() port.Record { return g.Ports[0] }

// Negative returns the negative leg. Only valid for differential groups.
func (g Group) Negative() port.Record { return g.Ports[1] }

func (g Group) IsDifferential() bool { return g.Kind == KindDifferential }

// Sequences returns the port sequences of the group, positive first.
func (g Group) Sequences() []int {
	seqs := make([]int, len(g.Ports))
	for i, p := range g.Ports {
		seqs[i] = p.Sequence
	}
	return seqs
}

// MinSequence is the smallest sequence of the group.
func (g Group) MinSequence() int {
	lowest := g.Ports[0].Sequence
	for _, p := range g.Ports[1:] {
		if p.Sequence < lowest {
			lowest = p.Sequence
		}
	}
	return lowest
}

func (g Group) Key() Key {
	if g.Kind == KindSingle {
		return Key{Kind: KindSingle, ID: g.Ports[0].Net}
	}
	nets := []string{g.Ports[0].Net, g.Ports[1].Net}
	sort.Strings(nets)
	return Key{Kind: KindDifferential, ID: strings.Join(nets, "::")}
}

// Label is the port name for single groups and the pair name (or
// "pos/neg" port names) for differential groups.
func (g Group) Label() string {
	if g.Kind == KindSingle {
		return g.Ports[0].Name
	}
	if pair := g.Ports[0].Pair; pair != "" {
		return pair
	}
	return fmt.Sprintf("%s/%s", g.Ports[0].Name, g.Ports[1].Name)
}

// Topology is the classification of one port list.
type Topology struct {
	TxSingle []Group
	RxSingle []Group
	TxDiff   []Group
	RxDiff   []Group

	txByKey map[Key]Group
}

// Classify splits records into TX/RX single and differential groups.
// Controllers transmit, DRAM ports receive; unknown roles are ignored.
func Classify(records []port.Record) *Topology {
	t := &Topology{
		TxSingle: singles(records, port.RoleController, TX),
		RxSingle: singles(records, port.RoleDRAM, RX),
		TxDiff:   pairs(records, port.RoleController, TX),
		RxDiff:   pairs(records, port.RoleDRAM, RX),
	}

	t.txByKey = make(map[Key]Group)
	for _, g := range t.TXs() {
		t.txByKey[g.Key()] = g
	}
	return t
}

func singles(records []port.Record, role port.Role, dir Direction) []Group {
	var groups []Group
	for _, r := range records {
		if r.Role != role || r.NetType != port.Single {
			continue
		}
		groups = append(groups, Group{Kind: KindSingle, Direction: dir, Ports: []port.Record{r}})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Ports[0].Sequence < groups[j].Ports[0].Sequence
	})
	return groups
}

type bucketKey struct {
	component string
	pair      string
}

// pairs buckets differential ports by (component, pair or net). Ports
// without an explicit polarity take positive if the bucket has none yet,
// negative otherwise. Buckets missing a leg are dropped.
func pairs(records []port.Record, role port.Role, dir Direction) []Group {
	buckets := make(map[bucketKey]map[port.Polarity]port.Record)
	for _, r := range records {
		if r.Role != role || r.NetType != port.Differential {
			continue
		}
		id := r.Pair
		if id == "" {
			id = r.Net
		}
		key := bucketKey{component: r.Component, pair: id}
		legs, ok := buckets[key]
		if !ok {
			legs = make(map[port.Polarity]port.Record, 2)
			buckets[key] = legs
		}

		polarity := r.Polarity
		if polarity == port.NoPolarity {
			polarity = port.Positive
			if _, taken := legs[port.Positive]; taken {
				polarity = port.Negative
			}
		}
		legs[polarity] = r
	}

	var groups []Group
	for _, legs := range buckets {
		pos, okPos := legs[port.Positive]
		neg, okNeg := legs[port.Negative]
		if !okPos || !okNeg {
			continue
		}
		groups = append(groups, Group{
			Kind:      KindDifferential,
			Direction: dir,
			Ports:     []port.Record{pos, neg},
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].MinSequence() < groups[j].MinSequence()
	})
	return groups
}

// TXs returns the single-ended TX groups followed by the differential ones.
func (t *Topology) TXs() []Group {
	out := make([]Group, 0, len(t.TxSingle)+len(t.TxDiff))
	out = append(out, t.TxSingle...)
	return append(out, t.TxDiff...)
}

// RXs returns the single-ended RX groups followed by the differential ones.
func (t *Topology) RXs() []Group {
	out := make([]Group, 0, len(t.RxSingle)+len(t.RxDiff))
	out = append(out, t.RxSingle...)
	return append(out, t.RxDiff...)
}

// TxByKey finds the TX group with the given identity.
func (t *Topology) TxByKey(key Key) (Group, bool) {
	g, ok := t.txByKey[key]
	return g, ok
}

// ExpectedTx returns the TX group sharing the RX group's net (or net pair).
func (t *Topology) ExpectedTx(rx Group) (Group, bool) {
	return t.TxByKey(rx.Key())
}

// ControllerSequences returns the sorted sequences of every TX port.
func (t *Topology) ControllerSequences() []int {
	var seqs []int
	for _, g := range t.TXs() {
		seqs = append(seqs, g.Sequences()...)
	}
	sort.Ints(seqs)
	return seqs
}

func (t *Topology) RxGroupCount() int { return len(t.RxSingle) + len(t.RxDiff) }

func (t *Topology) RxPortCount() int { return len(t.RxSingle) + 2*len(t.RxDiff) }
