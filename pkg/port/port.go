// Package port loads, validates and renumbers the port metadata that
// describes every port of a channel network.
package port

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrValidation reports empty or structurally invalid metadata.
var ErrValidation = errors.New("invalid port metadata")

type Role string

const (
	RoleController Role = "controller"
	RoleDRAM       Role = "dram"
	RoleUnknown    Role = "unknown"
)

type NetType string

const (
	Single       NetType = "single"
	Differential NetType = "differential"
)

type Polarity string

const (
	Positive   Polarity = "positive"
	Negative   Polarity = "negative"
	NoPolarity Polarity = ""
)

// Record is one port of the network. Sequence is 1-based and maps to
// network port index Sequence-1.
type Record struct {
	Sequence  int
	Name      string
	Component string
	Role      Role
	Net       string
	NetType   NetType
	Pair      string // empty when absent
	Polarity  Polarity
}

// Metadata is the on-disk port description.
type Metadata struct {
	Ports                []Entry  `json:"ports"`
	ReferenceNet         string   `json:"reference_net"`
	ControllerComponents []string `json:"controller_components"`
	DRAMComponents       []string `json:"dram_components"`
	CircuitVersion       string   `json:"circuit_version,omitempty"`
}

// Entry is a raw port entry before normalization.
type Entry struct {
	Sequence      *int    `json:"sequence,omitempty"`
	Name          string  `json:"name"`
	Component     string  `json:"component"`
	ComponentRole string  `json:"component_role"`
	Net           string  `json:"net"`
	NetType       string  `json:"net_type"`
	Pair          *string `json:"pair,omitempty"`
	Polarity      *string `json:"polarity,omitempty"`
}

// Catalog owns the normalized, densely numbered port records.
type Catalog struct {
	Records []Record
	Meta    Metadata

	bySequence map[int]Record
}

// LoadFile reads a metadata JSON file and builds a Catalog.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading port metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, path, err)
	}

	cat, err := New(meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// New normalizes the metadata entries, sorts them by declared sequence and
// renumbers them 1..N.
func New(meta Metadata) (*Catalog, error) {
	if len(meta.Ports) == 0 {
		return nil, fmt.Errorf("%w: no ports found", ErrValidation)
	}

	records := make([]Record, 0, len(meta.Ports))
	for i, e := range meta.Ports {
		seq := i + 1
		if e.Sequence != nil {
			seq = *e.Sequence
		}

		rec := Record{
			Sequence:  seq,
			Name:      e.Name,
			Component: e.Component,
			Role:      NormalizeRole(e.ComponentRole),
			Net:       e.Net,
			NetType:   NormalizeNetType(e.NetType),
		}
		if e.Pair != nil {
			rec.Pair = *e.Pair
		}
		if e.Polarity != nil {
			rec.Polarity = NormalizePolarity(*e.Polarity)
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Sequence < records[j].Sequence
	})

	cat := &Catalog{Meta: meta}
	cat.setRecords(Renumber(records))
	return cat, nil
}

// FromRecords builds a Catalog over already normalized records, renumbering
// them in their current order.
func FromRecords(records []Record) (*Catalog, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no ports found", ErrValidation)
	}

	cat := &Catalog{}
	cat.setRecords(Renumber(records))
	return cat, nil
}

func (c *Catalog) setRecords(records []Record) {
	c.Records = records
	c.bySequence = make(map[int]Record, len(records))
	for _, r := range records {
		c.bySequence[r.Sequence] = r
	}
}

// Len returns the number of ports.
func (c *Catalog) Len() int { return len(c.Records) }

// BySequence looks a record up by its current sequence.
func (c *Catalog) BySequence(seq int) (Record, bool) {
	r, ok := c.bySequence[seq]
	return r, ok
}

// Trim returns the records with the given sequences, renumbered 1..K in
// ascending order of their original sequence.
func (c *Catalog) Trim(sequences []int) ([]Record, error) {
	sorted := append([]int(nil), sequences...)
	sort.Ints(sorted)

	kept := make([]Record, 0, len(sorted))
	for _, seq := range sorted {
		r, ok := c.bySequence[seq]
		if !ok {
			return nil, fmt.Errorf("%w: unknown port sequence %d", ErrValidation, seq)
		}
		kept = append(kept, r)
	}
	return Renumber(kept), nil
}

// Renumber returns copies of records with Sequence = 1..N in slice order and
// names re-prefixed with the new sequence.
func Renumber(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		seq := i + 1
		r.Sequence = seq
		r.Name = PrefixName(r.Name, seq)
		out[i] = r
	}
	return out
}

var sequencePrefix = regexp.MustCompile(`^\d+_(.*)$`)

// PrefixName applies the "<sequence>_<suffix>" convention, dropping any
// existing "<digits>_" prefix first.
func PrefixName(name string, sequence int) string {
	base := name
	if m := sequencePrefix.FindStringSubmatch(base); m != nil {
		base = m[1]
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return strconv.Itoa(sequence)
	}
	return fmt.Sprintf("%d_%s", sequence, base)
}

func NormalizeRole(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "controller", "ctrl", "host":
		return RoleController
	case "dram", "memory", "mem":
		return RoleDRAM
	default:
		return RoleUnknown
	}
}

func NormalizeNetType(value string) NetType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "diff", "differential":
		return Differential
	default:
		return Single
	}
}

// NormalizePolarity maps the accepted spellings to Positive/Negative. Any
// other label is kept lower-cased, so its pair never completes; an empty
// value is unlabeled.
func NormalizePolarity(value string) Polarity {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "positive", "pos", "+", "p":
		return Positive
	case "negative", "neg", "-", "n":
		return Negative
	default:
		return Polarity(v)
	}
}
