package netlist

import (
	"bufio"
	"fmt"
	"strings"
	"unicode"

	"github.com/linmingchih/channel-check-tool-v2/pkg/device"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
)

type NetlistData struct {
	Elements  []Element                    // Circuit elements
	Nodes     map[string]int               // Node name and index
	Models    map[string]device.ModelParam // Model cards by name
	Analysis  AnalysisType                 // Analysis type
	TranParam struct {
		TStep  float64 // timestep
		TStop  float64 // stop time
		TStart float64 // first stored time point
	}
	Title string // Circuit title
}

type Element struct {
	Type   string            // Part type (R, L, C, V, I, S)
	Name   string            // Part name
	Nodes  []string          // Node names
	Value  float64           // Part value
	Params map[string]string // Parameter values, lower case keys
}

// Parse reads a netlist. A first line starting with '*' is the title; other
// '*' lines are comments, ';' starts an inline comment and '+' continues the
// previous line. Double quotes group a value that contains spaces.
func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	netlistData := &NetlistData{
		Nodes:  make(map[string]int),
		Models: make(map[string]device.ModelParam),
	}

	var currentLine string
	first := true
	lineNo := 0
	startLine := 0 // line where currentLine began

	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(netlistData, currentLine)
		currentLine = ""
		if err != nil {
			return fmt.Errorf("line %d: %w", startLine, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(stripInlineComment(scanner.Text()))

		if first && line != "" {
			first = false
			if strings.HasPrefix(line, "*") {
				netlistData.Title = strings.TrimSpace(strings.TrimPrefix(line, "*"))
				continue
			}
		}

		if len(line) == 0 || strings.HasPrefix(line, "*") {
			continue
		}

		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("line %d: continuation without a statement", lineNo)
			}
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine = line
		startLine = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading netlist: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return netlistData, nil
}

func stripInlineComment(line string) string {
	inQuote := false
	for i, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			return line[:i]
		}
	}
	return line
}

// splitFields splits on white space outside double quotes and drops the
// quotes themselves.
func splitFields(line string) []string {
	var (
		fields  []string
		current strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case unicode.IsSpace(r) && !inQuote:
			if started {
				fields = append(fields, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if started {
		fields = append(fields, current.String())
	}
	return fields
}

func parseLine(netlistData *NetlistData, line string) error {
	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := netlistData.Nodes[node]; !exists {
			netlistData.Nodes[node] = len(netlistData.Nodes)
		}
	}
	return nil
}

// Parse .op, .tran, .model, .end
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := splitFields(line)
	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(netlistData, fields[1:])

	case ".op":
		netlistData.Analysis = AnalysisOP

	case ".tran":
		netlistData.Analysis = AnalysisTRAN
		if len(fields) < 3 {
			return fmt.Errorf("insufficient tran parameters, need at least tstep and tstop")
		}
		netlistData.TranParam.TStep, err = util.ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("invalid tstep: %w", err)
		}
		netlistData.TranParam.TStop, err = util.ParseValue(fields[2])
		if err != nil {
			return fmt.Errorf("invalid tstop: %w", err)
		}
		if len(fields) > 3 {
			netlistData.TranParam.TStart, err = util.ParseValue(fields[3])
			if err != nil {
				return fmt.Errorf("invalid tstart: %w", err)
			}
		}

	case ".end":

	default:
		return fmt.Errorf("unsupported control line: %s", fields[0])
	}

	return nil
}

func parseModel(netlistData *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("insufficient model parameters")
	}

	modelName := fields[0]
	modelType := strings.ToUpper(fields[1])
	if modelType != "S" {
		return fmt.Errorf("unsupported model type: %s", modelType)
	}

	model := device.ModelParam{
		Type:    modelType,
		Name:    modelName,
		Params:  make(map[string]float64),
		Options: make(map[string]string),
	}
	for _, field := range fields[2:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		model.Options[key] = value
		if num, err := util.ParseValue(value); err == nil {
			model.Params[key] = num
		}
	}

	netlistData.Models[modelName] = model
	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := splitFields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "V", "I":
		return parseSource(fields)

	case "S":
		for _, field := range fields[1:] {
			if key, value, ok := strings.Cut(field, "="); ok {
				elem.Params[strings.ToLower(key)] = value
				continue
			}
			elem.Nodes = append(elem.Nodes, field)
		}
		if elem.Params["fqmodel"] == "" {
			return nil, fmt.Errorf("s element %s: missing FQMODEL", elem.Name)
		}
		return elem, nil

	case "R", "L", "C":
		elem.Nodes = fields[1 : len(fields)-1]
		value, err := util.ParseValue(fields[len(fields)-1])
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", elem.Name, err)
		}
		elem.Value = value
		return elem, nil

	default:
		return nil, fmt.Errorf("unsupported element type: %s", elem.Name)
	}
}

// parseSource reads V and I elements: DC <value>, PULSE(...) or a bare value.
func parseSource(fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("insufficient source parameters: %s", fields[0])
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Nodes:  []string{fields[1], fields[2]},
		Params: make(map[string]string),
	}

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ") // Append whitespace around parentheses
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)
	if len(words) == 0 {
		return nil, fmt.Errorf("source %s: missing value", elem.Name)
	}

	switch strings.ToUpper(words[0]) {
	case "DC":
		if len(words) < 2 {
			return nil, fmt.Errorf("missing DC value")
		}
		elem.Params["type"] = "dc"
		value, err := util.ParseValue(words[1])
		if err != nil {
			return nil, err
		}
		elem.Value = value

	case "PULSE":
		elem.Params["type"] = "pulse"
		pulseParams := strings.Join(words[1:], " ")
		pulseParams = strings.Trim(pulseParams, "() ")
		elem.Params["pulse"] = pulseParams

	default:
		value, err := util.ParseValue(words[0])
		if err != nil {
			return nil, fmt.Errorf("unsupported source type: %s", words[0])
		}
		elem.Params["type"] = "dc"
		elem.Value = value
	}

	return elem, nil
}

// CreateDevice builds the device for elem. S elements load the Touchstone
// file named by their model's TSTONEFILE option through load.
func CreateDevice(elem Element, models map[string]device.ModelParam, load func(path string) (*network.Network, error)) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Nodes, elem.Value)

	case "L":
		return device.NewInductor(elem.Name, elem.Nodes, elem.Value)

	case "C":
		return device.NewCapacitor(elem.Name, elem.Nodes, elem.Value)

	case "S":
		modelName := elem.Params["fqmodel"]
		model, ok := models[modelName]
		if !ok {
			return nil, fmt.Errorf("undefined model for %s: %s", elem.Name, modelName)
		}
		path := model.Options["tstonefile"]
		if path == "" {
			return nil, fmt.Errorf("model %s: missing TSTONEFILE", modelName)
		}
		nw, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelName, err)
		}
		return device.NewSParameterBlock(elem.Name, elem.Nodes, nw)

	case "V":
		switch elem.Params["type"] {
		case "dc":
			return device.NewDCVoltageSource(elem.Name, elem.Nodes, elem.Value)

		case "pulse":
			p, err := parsePulseParams(elem.Params["pulse"])
			if err != nil {
				return nil, err
			}
			return device.NewPulseVoltageSource(elem.Name, elem.Nodes, p)

		default:
			return nil, fmt.Errorf("unsupported voltage source type: %s", elem.Params["type"])
		}

	case "I":
		switch elem.Params["type"] {
		case "dc":
			return device.NewDCCurrentSource(elem.Name, elem.Nodes, elem.Value)

		case "pulse":
			p, err := parsePulseParams(elem.Params["pulse"])
			if err != nil {
				return nil, err
			}
			return device.NewPulseCurrentSource(elem.Name, elem.Nodes, p)

		default:
			return nil, fmt.Errorf("unsupported current source type: %s", elem.Params["type"])
		}
	}
	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

func parsePulseParams(params string) (device.Pulse, error) {
	pulseParams := strings.Fields(params)
	if len(pulseParams) < 7 {
		return device.Pulse{}, fmt.Errorf("insufficient PULSE parameters")
	}

	names := []string{"V1", "V2", "delay", "rise", "fall", "width", "period"}
	values := make([]float64, len(names))
	for i, name := range names {
		var err error
		values[i], err = util.ParseValue(pulseParams[i])
		if err != nil {
			return device.Pulse{}, fmt.Errorf("invalid PULSE %s: %w", name, err)
		}
	}

	return device.Pulse{
		V1:     values[0],
		V2:     values[1],
		Delay:  values[2],
		Rise:   values[3],
		Fall:   values[4],
		Width:  values[5],
		Period: values[6],
	}, nil
}
