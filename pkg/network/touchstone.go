package network

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"gonum.org/v1/gonum/mat"
)

// TouchstoneLexer tokenizes Touchstone v1 files. Line ends are kept so the
// option line can be told apart from data.
var TouchstoneLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `![^\n]*`},
	{Name: "EOL", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Hash", Pattern: `#`},
	{Name: "Number", Pattern: `[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9_]*`},
})

type touchstoneFile struct {
	Lines []*touchstoneLine `parser:"( @@ | EOL )*"`
}

type touchstoneLine struct {
	Option *optionLine `parser:"  Hash @@"`
	Values []float64   `parser:"| @Number+"`
}

type optionLine struct {
	Words []string `parser:"@( Ident | Number )+"`
}

var touchstoneParser = participle.MustBuild[touchstoneFile](
	participle.Lexer(TouchstoneLexer),
	participle.Elide("Comment", "Whitespace"),
)

type dataFormat string

const (
	formatMA dataFormat = "MA"
	formatDB dataFormat = "DB"
	formatRI dataFormat = "RI"
)

type options struct {
	freqScale float64
	format    dataFormat
	z0        float64
}

func defaultOptions() options {
	return options{freqScale: 1e9, format: formatMA, z0: 50}
}

func (o *optionLine) apply(opts *options) error {
	words := o.Words
	for i := 0; i < len(words); i++ {
		switch w := strings.ToUpper(words[i]); w {
		case "HZ":
			opts.freqScale = 1
		case "KHZ":
			opts.freqScale = 1e3
		case "MHZ":
			opts.freqScale = 1e6
		case "GHZ":
			opts.freqScale = 1e9
		case "S":
		case "Y", "Z", "H", "G":
			return fmt.Errorf("unsupported parameter type %s", w)
		case "MA", "DB", "RI":
			opts.format = dataFormat(w)
		case "R":
			if i+1 >= len(words) {
				return fmt.Errorf("missing reference impedance after R")
			}
			z0, err := strconv.ParseFloat(words[i+1], 64)
			if err != nil {
				return fmt.Errorf("invalid reference impedance %q: %w", words[i+1], err)
			}
			opts.z0 = z0
			i++
		default:
			return fmt.Errorf("unknown option %q", words[i])
		}
	}
	return nil
}

var portsFromExt = regexp.MustCompile(`(?i)\.s(\d+)p$`)

// PortsFromPath returns N for a ".sNp" file name.
func PortsFromPath(path string) (int, error) {
	m := portsFromExt.FindStringSubmatch(path)
	if m == nil {
		return 0, fmt.Errorf("cannot infer port count from %q", filepath.Base(path))
	}
	return strconv.Atoi(m[1])
}

// ReadFile loads a Touchstone v1 file; the port count comes from the
// ".sNp" extension.
func ReadFile(path string) (*Network, error) {
	ports, err := PortsFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening touchstone: %w", err)
	}
	defer f.Close()

	nw, err := Read(f, ports)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nw, nil
}

// Read parses Touchstone v1 data for an N-port network.
func Read(r io.Reader, ports int) (*Network, error) {
	if ports <= 0 {
		return nil, fmt.Errorf("%w: %d ports", ErrPortCount, ports)
	}

	file, err := touchstoneParser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	opts := defaultOptions()
	seenOption := false
	var values []float64
	for _, line := range file.Lines {
		switch {
		case line.Option != nil:
			if seenOption {
				continue
			}
			if err := line.Option.apply(&opts); err != nil {
				return nil, err
			}
			seenOption = true
		default:
			values = append(values, line.Values...)
		}
	}

	record := 1 + 2*ports*ports
	if len(values) == 0 || len(values)%record != 0 {
		return nil, fmt.Errorf("%w: %d values do not split into %d-port records", ErrPortCount, len(values), ports)
	}

	count := len(values) / record
	freq := make([]float64, count)
	s := make([]*mat.CDense, count)
	for k := 0; k < count; k++ {
		rec := values[k*record : (k+1)*record]
		freq[k] = rec[0] * opts.freqScale

		m := mat.NewCDense(ports, ports, nil)
		for idx := 0; idx < ports*ports; idx++ {
			row, col := entryPosition(idx, ports)
			m.Set(row, col, toComplex(opts.format, rec[1+2*idx], rec[2+2*idx]))
		}
		s[k] = m
	}

	return New(freq, s, opts.z0)
}

// entryPosition maps the idx-th pair of a record to its matrix position.
// Two-port files list S11 S21 S12 S22, all others are row-major.
func entryPosition(idx, ports int) (int, int) {
	if ports == 2 {
		return idx % 2, idx / 2
	}
	return idx / ports, idx % ports
}

func toComplex(format dataFormat, a, b float64) complex128 {
	switch format {
	case formatRI:
		return complex(a, b)
	case formatDB:
		return cmplx.Rect(math.Pow(10, a/20), b*math.Pi/180)
	default:
		return cmplx.Rect(a, b*math.Pi/180)
	}
}

// Write emits the network as Touchstone v1 in Hz and real/imaginary form.
func (n *Network) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "! %d-port S-parameters\n", n.ports)
	fmt.Fprintf(bw, "# Hz S RI R %s\n", formatFloat(n.Z0))

	for k, f := range n.Freq {
		bw.WriteString(formatFloat(f))
		if n.ports <= 2 {
			for idx := 0; idx < n.ports*n.ports; idx++ {
				row, col := entryPosition(idx, n.ports)
				writePair(bw, n.At(k, row, col))
			}
			bw.WriteByte('\n')
			continue
		}

		for row := 0; row < n.ports; row++ {
			for col := 0; col < n.ports; col++ {
				if col > 0 && col%4 == 0 {
					bw.WriteByte('\n')
				}
				writePair(bw, n.At(k, row, col))
			}
			bw.WriteByte('\n')
		}
	}

	return bw.Flush()
}

// WriteFile writes the network to path, creating parent directories.
func (n *Network) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating touchstone dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating touchstone: %w", err)
	}
	if err := n.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing touchstone: %w", err)
	}
	return f.Close()
}

func writePair(bw *bufio.Writer, v complex128) {
	bw.WriteByte(' ')
	bw.WriteString(formatFloat(real(v)))
	bw.WriteByte(' ')
	bw.WriteString(formatFloat(imag(v)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
