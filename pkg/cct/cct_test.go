package cct

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"gonum.org/v1/gonum/mat"

	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/metrics"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/sim"
	"github.com/linmingchih/channel-check-tool-v2/pkg/waveform"
)

type fakeRecorder struct {
	stats []prune.Stats
	rows  []metrics.Row
}

func (r *fakeRecorder) RecordPrune(s prune.Stats) error {
	r.stats = append(r.stats, s)
	return nil
}

func (r *fakeRecorder) RecordRows(rows []metrics.Row) error {
	r.rows = append(r.rows, rows...)
	return nil
}

// Ports: 1 ctrl A, 2 ctrl B, 3 dram A, 4 dram B.
func twoChannels() *port.Catalog {
	entry := func(name, comp, role, net string) port.Entry {
		return port.Entry{Name: name, Component: comp, ComponentRole: role, Net: net, NetType: "single"}
	}
	cat, err := port.New(port.Metadata{Ports: []port.Entry{
		entry("A_U1", "U1", "controller", "A"),
		entry("B_U1", "U1", "controller", "B"),
		entry("A_U2", "U2", "dram", "A"),
		entry("B_U2", "U2", "dram", "B"),
	}})
	Expect(err).NotTo(HaveOccurred())
	return cat
}

// twoLines couples 1<->3 and 2<->4 with |S21| = 0.5 and nothing else.
func twoLines() *network.Network {
	m := mat.NewCDense(4, 4, nil)
	for _, p := range [][2]int{{0, 2}, {1, 3}} {
		m.Set(p[0], p[1], 0.5)
		m.Set(p[1], p[0], 0.5)
	}
	nw, err := network.New([]float64{1e8}, []*mat.CDense{m}, 50)
	Expect(err).NotTo(HaveOccurred())
	return nw
}

// plateau is 0.4 V from 200 ps to 400 ps, sampled every 10 ps.
func plateau(on bool) waveform.Waveform {
	var w waveform.Waveform
	for i := 0; i <= 100; i++ {
		t := float64(i * 10)
		v := 0.0
		if on && t >= 200 && t <= 400 {
			v = 0.4
		}
		w.Time = append(w.Time, t)
		w.Voltage = append(w.Voltage, v)
	}
	return w
}

var (
	testTx  = config.Tx{VHigh: 0.8, RiseTime: 30e-12, UnitInterval: 133e-12, Resistance: 40, Capacitance: 1e-12}
	testRx  = config.Rx{Resistance: 30, Capacitance: 1.8e-12}
	testRun = config.Run{Step: 10e-12, Stop: 1e-9}
)

var _ = Describe("Checker", func() {
	var (
		mockCtrl *gomock.Controller
		driver   *MockDriver
		rec      *fakeRecorder
		workdir  string
		checker  *Checker
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		driver = NewMockDriver(mockCtrl)
		rec = &fakeRecorder{}
		workdir = GinkgoT().TempDir()

		var err error
		checker, err = New(Options{
			TouchstonePath: filepath.Join(workdir, "absent.s4p"),
			Catalog:        twoChannels(),
			Workdir:        workdir,
			Driver:         driver,
			Recorder:       rec,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should refuse to run before configuration", func() {
		Expect(checker.Run(context.Background(), testRun)).To(MatchError(prune.ErrNotConfigured))
		Expect(checker.SetRx(testRx)).To(MatchError(prune.ErrNotConfigured))
		_, err := checker.PreRun()
		Expect(err).To(MatchError(prune.ErrNotConfigured))
		_, err = checker.Calculate()
		Expect(err).To(MatchError(prune.ErrNotConfigured))
		_, _, err = checker.Scenario(checker.Topology().TXs()[0])
		Expect(err).To(MatchError(prune.ErrNotConfigured))
	})

	It("should fall back to the default circuit version", func() {
		Expect(checker.CircuitVersion()).To(Equal("2025.1"))
	})

	Context("when configured", func() {
		BeforeEach(func() {
			checker.SetTx(testTx)
			Expect(checker.SetRx(testRx)).To(Succeed())
		})

		It("should report one row per channel without crosstalk", func() {
			var netlists []string
			driver.EXPECT().
				Run(gomock.Any(), gomock.Any(), testRun).
				DoAndReturn(func(_ context.Context, text string, _ config.Run) (map[int]waveform.Waveform, error) {
					netlists = append(netlists, text)
					activeA := strings.Contains(text, "V1 netb_1 0 PULSE")
					return map[int]waveform.Waveform{
						1: plateau(activeA),
						2: plateau(!activeA),
						3: plateau(activeA),
						4: plateau(!activeA),
					}, nil
				}).
				Times(2)

			Expect(checker.Run(context.Background(), testRun)).To(Succeed())
			Expect(netlists).To(HaveLen(2))
			Expect(netlists[0]).To(ContainSubstring("V1 netb_1 0 PULSE(0 0.8 "))
			Expect(netlists[0]).NotTo(ContainSubstring("V2 "))
			Expect(netlists[1]).To(ContainSubstring("V2 netb_2 0 PULSE(0 0.8 "))
			Expect(checker.Aggregator().Len()).To(Equal(4))

			for i, name := range []string{"netlist_001_1_A_U1.cir", "netlist_002_2_B_U1.cir"} {
				data, err := os.ReadFile(filepath.Join(workdir, "netlist", name))
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(netlists[i]))
			}

			out := filepath.Join(workdir, "report", "cct.csv")
			rows, err := checker.WriteReport(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].String()).To(Equal("1_A_U1, 3_A_U2, 53.200, 30.800, 0.000, 22.400, 1.727"))
			Expect(rows[1].String()).To(Equal("2_B_U1, 4_B_U2, 53.200, 30.800, 0.000, 22.400, 1.727"))

			data, err := os.ReadFile(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(metrics.Header + "\n" + rows[0].String() + "\n" + rows[1].String()))

			Expect(rec.stats).To(HaveLen(2))
			Expect(rec.rows).To(Equal(rows))
		})

		It("should abort on a driver failure", func() {
			boom := errors.New("solver crashed")
			driver.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

			err := checker.Run(context.Background(), testRun)
			Expect(err).To(MatchError(boom))
			Expect(err.Error()).To(ContainSubstring("1_A_U1"))
		})

		It("should stop before simulating when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(checker.Run(ctx, testRun)).To(MatchError(context.Canceled))
		})

		It("should skip RX groups without a primary waveform", func() {
			driver.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(map[int]waveform.Waveform{4: plateau(false)}, nil).
				Times(2)

			Expect(checker.Run(context.Background(), testRun)).To(Succeed())
			rows, err := checker.Calculate()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].Rx).To(Equal("4_B_U2"))
		})

		It("should drop captured waveforms when RX changes", func() {
			driver.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(map[int]waveform.Waveform{3: plateau(true), 4: plateau(true)}, nil).
				Times(2)

			Expect(checker.Run(context.Background(), testRun)).To(Succeed())
			Expect(checker.Aggregator().Len()).To(Equal(4))
			Expect(checker.SetRx(testRx)).To(Succeed())
			Expect(checker.Aggregator().Len()).To(BeZero())
		})
	})
})

var _ = Describe("Checker with a channel network", func() {
	var (
		workdir string
		rec     *fakeRecorder
		checker *Checker
	)

	BeforeEach(func() {
		workdir = GinkgoT().TempDir()
		path := filepath.Join(workdir, "pcb.s4p")
		Expect(twoLines().WriteFile(path)).To(Succeed())

		rec = &fakeRecorder{}
		var err error
		checker, err = New(Options{
			TouchstonePath: path,
			Catalog:        twoChannels(),
			Workdir:        workdir,
			Driver:         sim.NewLocalDriver(logr.Discard()),
			Recorder:       rec,
		})
		Expect(err).NotTo(HaveOccurred())
		checker.SetTx(testTx)
		Expect(checker.SetRx(testRx)).To(Succeed())
	})

	It("should reject a network of the wrong size", func() {
		m := mat.NewCDense(3, 3, nil)
		nw, err := network.New([]float64{1e9}, []*mat.CDense{m}, 50)
		Expect(err).NotTo(HaveOccurred())

		_, err = New(Options{Catalog: twoChannels(), Network: nw, Driver: sim.NewLocalDriver(logr.Discard())})
		Expect(err).To(MatchError(network.ErrPortCount))
	})

	It("should summarize a pre-run at a high threshold", func() {
		th := 10.0
		checker.SetThreshold(&th)
		stats, err := checker.PreRun()
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(HaveLen(2))
		Expect(rec.stats).To(HaveLen(2))

		Expect(stats[0].KeptPortCount).To(Equal(3))
		Expect(stats[0].TouchstonePath).To(Equal(filepath.Join(workdir, "trimmed_touchstone", "pcb_1_A_U1_3p.s3p")))

		Expect(SummarizePreRun(stats, checker.Threshold())).To(Equal(
			"Pre-run complete at threshold 10.0 dB.\n" +
				"Average kept ports: 75.0%\n" +
				"Average kept RX ports: 50.0%\n" +
				"1_A_U1: ports 3/4 (75.0%), rx 1/2 (50.0%)\n" +
				"2_B_U1: ports 3/4 (75.0%), rx 1/2 (50.0%)"))
	})

	It("should run both scenarios with the local driver", func() {
		Expect(checker.Run(context.Background(), testRun)).To(Succeed())

		rows, err := checker.Calculate()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		for _, row := range rows {
			fields := strings.Split(row.String(), ", ")
			Expect(fields[4]).To(Equal("0.000"))
			Expect(row.Sig).To(BeNumerically(">", 0))
			Expect(row.ISI).To(BeNumerically(">", -1e-9))
			Expect(row.PseudoEye).To(BeNumerically("~", row.Sig-row.ISI, 1e-9))
		}
		Expect([]string{rows[0].Tx, rows[1].Tx}).To(Equal([]string{"1_A_U1", "2_B_U1"}))
	})
})

var _ = Describe("SummarizePreRun", func() {
	It("should report the full network without a threshold", func() {
		stats := []prune.Stats{
			{TxLabel: "1_A_U1", KeptPortCount: 4, TotalPortCount: 4, KeptRxPortCount: 2, TotalRxPortCount: 2},
		}
		Expect(SummarizePreRun(stats, nil)).To(Equal(
			"Pre-run complete. Using full network (no threshold applied).\n" +
				"Average kept ports: 100.0%\n" +
				"Average kept RX ports: 100.0%\n" +
				"1_A_U1: ports 4/4 (100.0%), rx 2/2 (100.0%)"))
	})

	It("should omit RX ratios when there are no RX ports", func() {
		stats := []prune.Stats{{TxLabel: "DQS", KeptPortCount: 1, TotalPortCount: 2}}
		th := -42.0
		Expect(SummarizePreRun(stats, &th)).To(Equal(
			"Pre-run complete at threshold -42.0 dB.\n" +
				"Average kept ports: 50.0%\n" +
				"DQS: ports 1/2 (50.0%)"))
	})

	It("should say when nothing was evaluated", func() {
		Expect(SummarizePreRun(nil, nil)).To(Equal("Pre-run complete. No transmitters evaluated."))
		th := -30.0
		Expect(SummarizePreRun(nil, &th)).To(Equal("Pre-run complete at threshold -30.0 dB. No transmitters evaluated."))
	})
})
