package circuit

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/device"
	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
	"github.com/linmingchih/channel-check-tool-v2/pkg/netlist"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
)

type Circuit struct {
	name      string
	nodeMap   map[string]int
	branchMap map[string]int
	devices   []device.Device
	numNodes  int
	matrix    *matrix.CircuitMatrix
	Status    *device.CircuitStatus
	Models    map[string]device.ModelParam

	loadNetwork func(path string) (*network.Network, error)
	networks    map[string]*network.Network
}

func New(name string) *Circuit {
	c := &Circuit{
		name:      name,
		nodeMap:   make(map[string]int),
		branchMap: make(map[string]int),
		devices:   make([]device.Device, 0),
		Status:    &device.CircuitStatus{},
		Models:    make(map[string]device.ModelParam),
		networks:  make(map[string]*network.Network),
	}
	c.loadNetwork = network.ReadFile
	return c
}

// Setup maps nodes and branches, creates the matrix and the devices of a
// parsed netlist.
func (c *Circuit) Setup(data *netlist.NetlistData) error {
	c.SetModels(data.Models)
	c.AssignNodeBranchMaps(data.Elements)
	if err := c.CreateMatrix(); err != nil {
		return err
	}
	return c.SetupDevices(data.Elements)
}

func (c *Circuit) SetModels(models map[string]device.ModelParam) {
	c.Models = models
}

// SetNetworkLoader replaces the Touchstone reader used for S elements.
func (c *Circuit) SetNetworkLoader(load func(path string) (*network.Network, error)) {
	c.loadNetwork = load
}

func isGround(name string) bool {
	return name == "0" || name == "gnd"
}

func (c *Circuit) AssignNodeBranchMaps(elements []netlist.Element) {
	for _, elem := range elements {
		for _, nodeName := range elem.Nodes {
			if isGround(nodeName) {
				continue
			}
			if _, exists := c.nodeMap[nodeName]; !exists {
				c.nodeMap[nodeName] = len(c.nodeMap) + 1
			}
		}
	}

	branchStart := len(c.nodeMap) + 1
	for _, elem := range elements {
		switch elem.Type {
		case "V", "L":
			c.branchMap[elem.Name] = branchStart
			branchStart++
		}
	}

	c.numNodes = len(c.nodeMap)
}

func (c *Circuit) CreateMatrix() error {
	m, err := matrix.NewMatrix(len(c.nodeMap) + len(c.branchMap))
	if err != nil {
		return fmt.Errorf("circuit %s: %w", c.name, err)
	}
	c.matrix = m
	return nil
}

// readNetwork caches Touchstone files so that one model shared by several
// instances is read once.
func (c *Circuit) readNetwork(path string) (*network.Network, error) {
	if nw, ok := c.networks[path]; ok {
		return nw, nil
	}
	nw, err := c.loadNetwork(path)
	if err != nil {
		return nil, err
	}
	c.networks[path] = nw
	return nw, nil
}

func (c *Circuit) SetupDevices(elements []netlist.Element) error {
	for _, elem := range elements {
		dev, err := netlist.CreateDevice(elem, c.Models, c.readNetwork)
		if err != nil {
			return fmt.Errorf("creating device %s: %w", elem.Name, err)
		}

		nodeIndices := make([]int, len(elem.Nodes))
		for i, nodeName := range elem.Nodes {
			if isGround(nodeName) {
				continue
			}
			nodeIndices[i] = c.nodeMap[nodeName]
		}
		dev.SetNodes(nodeIndices)

		if b, ok := dev.(device.BranchDevice); ok {
			b.SetBranchIndex(c.branchMap[elem.Name])
		}

		c.devices = append(c.devices, dev)
	}

	// Initial stamp
	if err := c.Stamp(&device.CircuitStatus{Time: 0}); err != nil {
		return fmt.Errorf("initial stamping failed: %w", err)
	}
	c.matrix.SetupElements()

	return nil
}

func (c *Circuit) Stamp(status *device.CircuitStatus) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(c.matrix, status); err != nil {
			return fmt.Errorf("stamping device %s: %w", dev.GetName(), err)
		}
	}
	return nil
}

// InitState seeds the history of every time dependent device from the
// current solution.
func (c *Circuit) InitState() {
	solution := c.matrix.Solution()
	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.InitState(solution)
		}
	}
}

// Update commits an accepted time point.
func (c *Circuit) Update(status *device.CircuitStatus) {
	c.Status = status
	solution := c.matrix.Solution()
	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.UpdateState(solution, status)
		}
	}
}

func (c *Circuit) GetMatrix() *matrix.CircuitMatrix {
	return c.matrix
}

func (c *Circuit) GetNodeMap() map[string]int {
	return c.nodeMap
}

func (c *Circuit) GetDevices() []device.Device {
	return c.devices
}

// GetSolution returns V(node) for every node, the delivered current
// I(source) for every voltage source, and I(dev) from n1 to n2 for every
// inductor and resistor.
func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	matrixSolution := c.matrix.Solution()

	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = matrixSolution[idx]
	}

	for _, dev := range c.devices {
		switch d := dev.(type) {
		case *device.VoltageSource:
			solution[fmt.Sprintf("I(%s)", d.GetName())] = -matrixSolution[d.BranchIndex()]
		case *device.Inductor:
			solution[fmt.Sprintf("I(%s)", d.GetName())] = matrixSolution[d.BranchIndex()]
		case *device.Resistor:
			// V = IR -> I = V/R
			nodes := d.GetNodes()
			current := (c.GetNodeVoltage(nodes[0]) - c.GetNodeVoltage(nodes[1])) / d.GetValue()
			solution[fmt.Sprintf("I(%s)", d.GetName())] = current
		}
	}

	return solution
}

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}

func (c *Circuit) Name() string {
	return c.name
}

func (c *Circuit) GetNumNodes() int {
	return c.numNodes
}

func (c *Circuit) GetNodeVoltage(nodeIdx int) float64 {
	if nodeIdx <= 0 { // ground or invalid node
		return 0
	}

	solution := c.matrix.Solution()
	if nodeIdx >= len(solution) {
		return 0
	}

	return solution[nodeIdx]
}
