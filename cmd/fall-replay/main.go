// fall-replay 用跌倒检测器回放加速度记录并输出事件
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/replay"

	"github.com/spf13/cobra"
)

var version = "dev"

type options struct {
	format   string
	unit     string
	jsonOut  bool
	detector detector.Config
}

func main() {
	opts := options{detector: detector.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "fall-replay <trace.csv|trace.jsonl|->",
		Short: "Replay an accelerometer trace through the fall detector",
		Long: `fall-replay feeds a recorded trace through the same detector the
fall-monitor service runs per device, and prints every event with the
ingest statistics.

CSV traces use the columns timestamp_ms,x,y,z (header optional).
JSONL traces carry one sample or {"samples": [...]} batch per line.
Use "-" to read from stdin (requires --format).`,
		Version:      version,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "", "trace format: csv or jsonl (default from file extension)")
	f.StringVar(&opts.unit, "unit", "ms2", "axis unit in the trace: ms2 (m/s²) or g")
	f.BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	f.Float64Var(&opts.detector.FallThreshold, "fall-threshold", opts.detector.FallThreshold, "free-fall magnitude threshold (g)")
	f.Float64Var(&opts.detector.ImpactThreshold, "impact-threshold", opts.detector.ImpactThreshold, "impact magnitude threshold (g)")
	f.Int64Var(&opts.detector.FallWindowMs, "fall-window", opts.detector.FallWindowMs, "max free-fall to impact interval (ms)")
	f.Float64Var(&opts.detector.JerkThreshold, "jerk-threshold", opts.detector.JerkThreshold, "sample-to-sample change threshold (g)")
	f.Int64Var(&opts.detector.MinSampleIntervalMs, "min-interval", opts.detector.MinSampleIntervalMs, "minimum spacing between accepted samples (ms)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(out io.Writer, path string, opts options) error {
	if err := opts.detector.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	var scale float64
	switch opts.unit {
	case "ms2":
		scale = 1
	case "g":
		scale = detector.GravityEarth
	default:
		return fmt.Errorf("invalid unit %q: must be ms2 or g", opts.unit)
	}

	format := replay.Format(opts.format)
	if format == "" {
		if path == "-" {
			return fmt.Errorf("--format is required when reading stdin")
		}
		var err error
		if format, err = replay.FormatFromPath(path); err != nil {
			return err
		}
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	samples, err := replay.Read(in, format)
	if err != nil {
		return err
	}

	res := replay.Run(opts.detector, samples, scale)

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, ev := range res.Events {
		switch ev.Kind {
		case detector.ImpactConfirmed:
			fmt.Fprintf(out, "%8d  %-16s  mag=%6.2fg  dmag=%6.2fg  free_fall=%dms\n",
				ev.Timestamp, ev.Kind, ev.Magnitude, ev.DeltaMagnitude, ev.FreeFallDurationMs())
		default:
			fmt.Fprintf(out, "%8d  %-16s  mag=%6.2fg  dmag=%6.2fg\n",
				ev.Timestamp, ev.Kind, ev.Magnitude, ev.DeltaMagnitude)
		}
	}

	counts := res.Count()
	fmt.Fprintf(out, "\nsamples: %d  accepted: %d  rate_limited: %d  invalid: %d\n",
		len(samples), res.Stats.Accepted, res.Stats.RateLimited, res.Stats.Invalid)
	fmt.Fprintf(out, "events: %s=%d  %s=%d  final_phase=%s\n",
		detector.ImpactConfirmed, counts[detector.ImpactConfirmed],
		detector.PossibleFall, counts[detector.PossibleFall],
		res.Final.Phase())
	return nil
}
