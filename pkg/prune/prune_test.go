package prune_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
)

func entry(name, comp, role, net string) port.Entry {
	return port.Entry{Name: name, Component: comp, ComponentRole: role, Net: net, NetType: "single"}
}

// Ports: 1 ctrl A, 2 ctrl B, 3 dram A, 4 dram B, 5 dram C.
func fixtureCatalog() *port.Catalog {
	cat, err := port.New(port.Metadata{Ports: []port.Entry{
		entry("A_U1", "U1", "controller", "A"),
		entry("B_U1", "U1", "controller", "B"),
		entry("A_U2", "U2", "dram", "A"),
		entry("B_U2", "U2", "dram", "B"),
		entry("C_U2", "U2", "dram", "C"),
	}})
	Expect(err).NotTo(HaveOccurred())
	return cat
}

// Couplings (0-based): A thru 0.9, B thru 0.9, A->B' -40 dB, B->A' -60 dB,
// A->C' -20 dB, B->C' none.
func fixtureNetwork() *network.Network {
	couple := func(m *mat.CDense, i, j int, v complex128) {
		m.Set(i, j, v)
		m.Set(j, i, v)
	}

	var samples []*mat.CDense
	for _, scale := range []float64{1, 0.5} {
		m := mat.NewCDense(5, 5, nil)
		for i := 0; i < 5; i++ {
			m.Set(i, i, complex(0.05*scale, 0))
		}
		couple(m, 2, 0, complex(0.9*scale, 0))
		couple(m, 3, 1, complex(0, -0.9*scale))
		couple(m, 3, 0, complex(0.01*scale, 0))
		couple(m, 2, 1, complex(0.001*scale, 0))
		couple(m, 4, 0, complex(0, 0.1*scale))
		samples = append(samples, m)
	}

	nw, err := network.New([]float64{1e8, 5e9}, samples, 50)
	Expect(err).NotTo(HaveOccurred())
	return nw
}

func dB(v float64) *float64 { return &v }

func keptOf(res *prune.Result) []int { return res.KeptSequences }

var _ = Describe("Engine", func() {
	var (
		engine  *prune.Engine
		workdir string
		txA     topology.Group
		txB     topology.Group
	)

	tx := config.Tx{VHigh: 0.8, RiseTime: 30e-12, UnitInterval: 133e-12, Resistance: 40, Capacitance: 1e-12}
	rx := config.Rx{Resistance: 30, Capacitance: 1.8e-12}

	BeforeEach(func() {
		workdir = GinkgoT().TempDir()
		engine = prune.New(prune.Config{
			Catalog:        fixtureCatalog(),
			Network:        fixtureNetwork(),
			TouchstonePath: filepath.Join(workdir, "pcb.s5p"),
			Workdir:        workdir,
		})
		txs := engine.Topology().TXs()
		Expect(txs).To(HaveLen(2))
		txA, txB = txs[0], txs[1]
	})

	Context("before configuration", func() {
		It("should refuse to compute", func() {
			_, err := engine.Compute(txA)
			Expect(err).To(MatchError(prune.ErrNotConfigured))
		})

		It("should refuse rx before tx", func() {
			Expect(engine.SetRx(rx)).To(MatchError(prune.ErrNotConfigured))
		})
	})

	Context("when configured", func() {
		BeforeEach(func() {
			engine.SetTx(tx)
			Expect(engine.SetRx(rx)).To(Succeed())
		})

		It("should keep everything without a threshold", func() {
			res, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(res)).To(Equal([]int{1, 2, 3, 4, 5}))
			Expect(res.TouchstonePath).To(Equal(filepath.Join(workdir, "pcb.s5p")))
			Expect(res.Stats.ThresholdDB).To(BeNil())
			Expect(res.Tx).To(Equal(tx))
			Expect(res.Configured).To(BeTrue())
		})

		It("should keep everything at -Inf", func() {
			engine.SetThreshold(dB(math.Inf(-1)))
			res, err := engine.Compute(txB)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(res)).To(Equal([]int{1, 2, 3, 4, 5}))
		})

		It("should keep weak couplings above the threshold", func() {
			engine.SetThreshold(dB(-50))
			res, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(res)).To(Equal([]int{1, 2, 3, 4, 5}))
			Expect(res.TouchstonePath).To(Equal(filepath.Join(workdir, "pcb.s5p")))
		})

		It("should drop RX groups below the threshold and export a trimmed network", func() {
			engine.SetThreshold(dB(-30))
			res, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(res)).To(Equal([]int{1, 2, 3, 5}))

			want := filepath.Join(workdir, "trimmed_touchstone", "pcb_1_A_U1_4p.s4p")
			Expect(res.TouchstonePath).To(Equal(want))
			Expect(res.Stats.TouchstonePath).To(Equal(want))

			trimmed, err := network.ReadFile(want)
			Expect(err).NotTo(HaveOccurred())
			Expect(trimmed.Ports()).To(Equal(4))
			Expect(trimmed.At(0, 3, 0)).To(Equal(complex(0, 0.1)))

			Expect(res.Stats.KeptPortCount).To(Equal(4))
			Expect(res.Stats.TotalPortCount).To(Equal(5))
			Expect(res.Stats.KeptRxGroupCount).To(Equal(2))
			Expect(res.Stats.TotalRxGroupCount).To(Equal(3))
			Expect(res.Stats.KeptRxPortCount).To(Equal(2))
			Expect(res.Stats.TotalRxPortCount).To(Equal(3))
			Expect(*res.Stats.ThresholdDB).To(Equal(-30.0))
			Expect(res.Stats.TxLabel).To(Equal("1_A_U1"))
		})

		It("should renumber and reclassify the kept ports", func() {
			engine.SetThreshold(dB(-30))
			res, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Ports).To(HaveLen(4))
			Expect(res.Ports[3].Name).To(Equal("4_C_U2"))
			Expect(res.Ports[3].Sequence).To(Equal(4))
			Expect(res.Topology.TxSingle).To(HaveLen(2))
			Expect(res.Topology.RxSingle).To(HaveLen(2))

			orig, ok := res.OriginalSequence(4)
			Expect(ok).To(BeTrue())
			Expect(orig).To(Equal(5))
			_, ok = res.OriginalSequence(5)
			Expect(ok).To(BeFalse())
		})

		It("should keep only controllers and the partner above the peak", func() {
			engine.SetThreshold(dB(10))
			resA, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(resA)).To(Equal([]int{1, 2, 3}))

			resB, err := engine.Compute(txB)
			Expect(err).NotTo(HaveOccurred())
			Expect(keptOf(resB)).To(Equal([]int{1, 2, 4}))
			Expect(resB.TouchstonePath).To(HaveSuffix("pcb_2_B_U1_3p.s3p"))
		})

		It("should prune monotonically", func() {
			thresholds := []float64{math.Inf(-1), -70, -50, -30, -10, 10}
			for _, g := range []topology.Group{txA, txB} {
				var prev map[int]bool
				for _, th := range thresholds {
					engine.SetThreshold(dB(th))
					res, err := engine.Compute(g)
					Expect(err).NotTo(HaveOccurred())

					cur := make(map[int]bool)
					for _, seq := range res.KeptSequences {
						cur[seq] = true
					}
					for seq := range cur {
						if prev != nil {
							Expect(prev).To(HaveKey(seq))
						}
					}
					Expect(cur).To(HaveKey(1))
					Expect(cur).To(HaveKey(2))
					prev = cur
				}
			}
		})

		It("should memoize per TX identity", func() {
			engine.SetThreshold(dB(-30))
			first, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			again, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeIdenticalTo(first))

			other, err := engine.Compute(txB)
			Expect(err).NotTo(HaveOccurred())
			Expect(other).NotTo(BeIdenticalTo(first))
		})

		It("should invalidate on every setter", func() {
			engine.SetThreshold(dB(-30))
			first, _ := engine.Compute(txA)

			engine.SetThreshold(dB(-30))
			second, _ := engine.Compute(txA)
			Expect(second).NotTo(BeIdenticalTo(first))

			engine.SetTx(config.Tx{VHigh: 1.2, RiseTime: 20e-12, UnitInterval: 100e-12, Resistance: 40, Capacitance: 1e-12})
			third, _ := engine.Compute(txA)
			Expect(third).NotTo(BeIdenticalTo(second))
			Expect(third.Tx.VHigh).To(Equal(1.2))

			Expect(engine.SetRx(config.Rx{Resistance: 60, Capacitance: 1e-12})).To(Succeed())
			fourth, _ := engine.Compute(txA)
			Expect(fourth).NotTo(BeIdenticalTo(third))
			Expect(fourth.Rx.Resistance).To(Equal(60.0))
		})
	})

	Context("without a network", func() {
		var logged []string

		BeforeEach(func() {
			logged = nil
			log := funcr.New(func(prefix, args string) {
				logged = append(logged, prefix+" "+args)
			}, funcr.Options{})

			engine = prune.New(prune.Config{
				Catalog:        fixtureCatalog(),
				TouchstonePath: "pcb.s5p",
				Workdir:        workdir,
				Logger:         log,
			})
			engine.SetTx(tx)
			Expect(engine.SetRx(rx)).To(Succeed())
		})

		It("should keep everything and warn once", func() {
			engine.SetThreshold(dB(-10))
			for _, g := range engine.Topology().TXs() {
				res, err := engine.Compute(g)
				Expect(err).NotTo(HaveOccurred())
				Expect(keptOf(res)).To(Equal([]int{1, 2, 3, 4, 5}))
				Expect(res.TouchstonePath).To(Equal("pcb.s5p"))
			}

			engine.SetThreshold(dB(-20))
			_, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())

			warnings := 0
			for _, line := range logged {
				if strings.Contains(line, "pruning disabled") {
					warnings++
				}
			}
			Expect(warnings).To(Equal(1))

			_, statErr := os.Stat(filepath.Join(workdir, "trimmed_touchstone"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("should stay silent without a threshold", func() {
			_, err := engine.Compute(txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(logged).To(BeEmpty())
		})
	})
})

var _ = Describe("Labels", func() {
	It("should sanitize labels for file names", func() {
		Expect(prune.SanitizeLabel("DQS 0/1")).To(Equal("DQS_0_1"))
		Expect(prune.SanitizeLabel("__x.y-z__")).To(Equal("x.y-z"))
		Expect(prune.SanitizeLabel("///")).To(Equal("tx"))
	})

	It("should build the trimmed touchstone name", func() {
		Expect(prune.TrimmedName("/data/pcb.s40p", "DQ 7", 12)).To(Equal("pcb_DQ_7_12p.s12p"))
	})
})
