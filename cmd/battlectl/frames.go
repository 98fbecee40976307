package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
)

// maxDumpFrames bounds one dump
const maxDumpFrames = 100_000

type recordView struct {
	Type    string `json:"type"`
	Lane    string `json:"lane"`
	Actor   string `json:"actor"`
	Target  string `json:"target,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type frameView struct {
	Frame   uint32       `json:"frame"`
	Missing bool         `json:"missing,omitempty"`
	Records []recordView `json:"records"`
}

func viewRecord(r event.Record) recordView {
	v := recordView{
		Type:    r.Type.String(),
		Lane:    r.Priority.String(),
		Actor:   strconv.FormatUint(r.Actor, 16),
		Payload: event.DecodePayload(r),
	}
	if r.Target != 0 {
		v.Target = strconv.FormatUint(r.Target, 16)
	}
	return v
}

func newDumpCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <from> [to]",
		Short: "Print the records of one frame or a range of frames",
		Example: `  battlectl dump 42
  battlectl dump 100 120 --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseFrameArg(args[0])
			if err != nil {
				return err
			}
			to := from
			if len(args) == 2 {
				if to, err = parseFrameArg(args[1]); err != nil {
					return err
				}
			}
			if from > to {
				return fmt.Errorf("from (%d) must not exceed to (%d)", from, to)
			}
			if to-from >= maxDumpFrames {
				return fmt.Errorf("range too large, dump at most %d frames at a time", maxDumpFrames)
			}

			journal, closeStore, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer closeStore()

			var views []frameView
			for f := uint64(from); f <= uint64(to); f++ {
				frame := uint32(f)
				records, err := journal.LoadFrame(cmd.Context(), frame)
				switch {
				case errors.Is(err, eventlog.ErrFrameNotFound):
					views = append(views, frameView{Frame: frame, Missing: true, Records: []recordView{}})
					continue
				case err != nil:
					return err
				}
				fv := frameView{Frame: frame, Records: make([]recordView, len(records))}
				for i, r := range records {
					fv.Records[i] = viewRecord(r)
				}
				views = append(views, fv)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, views)
			}
			for _, fv := range views {
				if fv.Missing {
					fmt.Fprintf(out, "frame %d: missing\n", fv.Frame)
					continue
				}
				fmt.Fprintf(out, "frame %d (%d records)\n", fv.Frame, len(fv.Records))
				for _, r := range fv.Records {
					fmt.Fprintf(out, "  %-9s %-16s actor=%-16s target=%-16s %+v\n", r.Lane, r.Type, r.Actor, r.Target, r.Payload)
				}
			}
			return nil
		},
	}
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [from to]",
		Short: "Check that every frame in a range was persisted",
		Long: `Check that every frame in a range was persisted.

Without arguments the whole log (1 to the last persisted frame) is checked.
Exits non-zero when frames are missing.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <from> <to>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, closeStore, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer closeStore()

			from, to, err := resolveRange(cmd, journal, args)
			if err != nil {
				return err
			}
			report, err := journal.ValidateFrameIntegrity(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "frames %d..%d: %d present, %d missing\n", report.From, report.To, report.ValidFrames, report.MissingCount)
				if len(report.Missing) > 0 {
					fmt.Fprintf(out, "missing: %v\n", report.Missing)
				}
			}
			if !report.Complete {
				return fmt.Errorf("frame log incomplete: %d frames missing", report.MissingCount)
			}
			return nil
		},
	}
}

// verifyReport is the outcome of replaying a range of frames
type verifyReport struct {
	From     uint32                `json:"from"`
	To       uint32                `json:"to"`
	Verified int                   `json:"verified"`
	Missing  int                   `json:"missing"`
	Failed   []eventlog.FrameCheck `json:"failed"`
}

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [from to]",
		Short: "Replay frames into a scratch queue and compare with the log",
		Long: `Replay frames into a scratch queue and compare with the log.

Each frame is re-enqueued, drained in lane order, and compared record by
record with what was persisted. The log itself is never written. Without
arguments the whole log is verified. Missing frames are skipped; use
validate to report them. Exits non-zero when any frame does not round-trip.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <from> <to>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, closeStore, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer closeStore()

			from, to, err := resolveRange(cmd, journal, args)
			if err != nil {
				return err
			}
			if to-from >= maxDumpFrames {
				return fmt.Errorf("range too large, verify at most %d frames at a time", maxDumpFrames)
			}

			report := verifyReport{From: from, To: to, Failed: []eventlog.FrameCheck{}}
			for f := uint64(from); f <= uint64(to); f++ {
				check, err := journal.VerifyFrame(cmd.Context(), uint32(f))
				switch {
				case errors.Is(err, eventlog.ErrFrameNotFound):
					report.Missing++
					continue
				case err != nil:
					return err
				}
				report.Verified++
				if !check.OK() {
					report.Failed = append(report.Failed, check)
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "frames %d..%d: %d verified, %d failed, %d missing\n",
					report.From, report.To, report.Verified, len(report.Failed), report.Missing)
				for _, c := range report.Failed {
					fmt.Fprintf(out, "  frame %d: stored=%d replayed=%d matched=%d unknown=%d missing=%d in-order=%v\n",
						c.Frame, c.Stored, c.Replayed, c.Matched, c.Unknown, c.Missing, c.InOrder)
				}
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d frames did not replay cleanly", len(report.Failed))
			}
			return nil
		},
	}
}

// logStats summarizes a range of the frame log
type logStats struct {
	From      uint32         `json:"from"`
	To        uint32         `json:"to"`
	Frames    int            `json:"frames"`
	Missing   int            `json:"missing"`
	Records   int            `json:"records"`
	ByLane    map[string]int `json:"byLane"`
	ByType    map[string]int `json:"byType"`
	LastFrame uint32         `json:"lastFrame"`
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [from to]",
		Short: "Count records per lane and event type",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <from> <to>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, closeStore, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer closeStore()

			from, to, err := resolveRange(cmd, journal, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			report, err := journal.ValidateFrameIntegrity(ctx, from, to)
			if err != nil {
				return err
			}
			records, err := journal.LoadFrameRange(ctx, from, to)
			if err != nil {
				return err
			}
			last, err := journal.LastFrame(ctx)
			if err != nil {
				return err
			}

			stats := logStats{
				From:      from,
				To:        to,
				Frames:    report.ValidFrames,
				Missing:   report.MissingCount,
				Records:   len(records),
				ByLane:    make(map[string]int),
				ByType:    make(map[string]int),
				LastFrame: last,
			}
			for _, r := range records {
				stats.ByLane[r.Priority.String()]++
				stats.ByType[r.Type.String()]++
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "frames %d..%d (last persisted %d)\n", stats.From, stats.To, stats.LastFrame)
			fmt.Fprintf(out, "  frames:  %d present, %d missing\n", stats.Frames, stats.Missing)
			fmt.Fprintf(out, "  records: %d\n", stats.Records)
			printCounts(out, "lanes", stats.ByLane)
			printCounts(out, "types", stats.ByType)
			return nil
		},
	}
}

// resolveRange reads <from> <to> or defaults to the whole log
func resolveRange(cmd *cobra.Command, journal *eventlog.Journal, args []string) (uint32, uint32, error) {
	if len(args) == 2 {
		from, err := parseFrameArg(args[0])
		if err != nil {
			return 0, 0, err
		}
		to, err := parseFrameArg(args[1])
		if err != nil {
			return 0, 0, err
		}
		if from > to {
			return 0, 0, fmt.Errorf("from (%d) must not exceed to (%d)", from, to)
		}
		return from, to, nil
	}

	last, err := journal.LastFrame(cmd.Context())
	if err != nil {
		return 0, 0, err
	}
	if last == 0 {
		return 0, 0, errors.New("frame log is empty")
	}
	return 1, last, nil
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "    %-16s %d\n", k, counts[k])
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
