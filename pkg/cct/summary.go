package cct

import (
	"fmt"
	"strings"

	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

// SummarizePreRun renders pre-run statistics as the text shown to the
// user: a headline, the average kept ratios, then one line per TX.
func SummarizePreRun(stats []prune.Stats, thresholdDB *float64) string {
	headline := "Pre-run complete."
	if thresholdDB != nil {
		headline = fmt.Sprintf("Pre-run complete at threshold %.1f dB.", *thresholdDB)
	}
	if len(stats) == 0 {
		return headline + " No transmitters evaluated."
	}
	if thresholdDB == nil {
		headline = "Pre-run complete. Using full network (no threshold applied)."
	}

	var (
		portRatios []float64
		rxRatios   []float64
		perTx      []string
	)
	for _, s := range stats {
		portRatio := 0.0
		if s.TotalPortCount > 0 {
			portRatio = float64(s.KeptPortCount) / float64(s.TotalPortCount)
		}
		portRatios = append(portRatios, portRatio)

		line := fmt.Sprintf("%s: ports %d/%d", s.TxLabel, s.KeptPortCount, s.TotalPortCount)
		if s.TotalPortCount > 0 {
			line += " (" + util.FormatPercent(portRatio) + ")"
		}
		if s.TotalRxPortCount > 0 {
			rxRatio := float64(s.KeptRxPortCount) / float64(s.TotalRxPortCount)
			rxRatios = append(rxRatios, rxRatio)
			line += fmt.Sprintf(", rx %d/%d (%s)", s.KeptRxPortCount, s.TotalRxPortCount, util.FormatPercent(rxRatio))
		}
		perTx = append(perTx, line)
	}

	lines := []string{headline, "Average kept ports: " + util.FormatPercent(mean(portRatios))}
	if len(rxRatios) > 0 {
		lines = append(lines, "Average kept RX ports: "+util.FormatPercent(mean(rxRatios)))
	}
	return strings.Join(append(lines, perTx...), "\n")
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
