package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"

	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/replay"
	"github.com/getsentry/callprof/internal/stats"
	"github.com/getsentry/callprof/internal/timing"
)

var (
	flagClock     string
	flagSort      string
	flagOrder     string
	flagFormat    string
	flagOutput    string
	flagStripDirs bool
	flagContexts  bool
	flagChildren  bool
	flagBuiltins  bool
	flagBucket    string
)

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Replay a recording and print its function statistics",
	Args:  cobra.ExactArgs(1),
	Run:   runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&flagClock, "clock", "wall",
		"clock the recording was taken with (wall or cpu)")
	replayCmd.Flags().StringVar(&flagSort, "sort", "ttot",
		"sort key: name, ncall, ttot, tsub or tavg")
	replayCmd.Flags().StringVar(&flagOrder, "order", "desc",
		"sort order: asc or desc")
	replayCmd.Flags().StringVar(&flagFormat, "format", "text",
		"output format: text, callgrind or json")
	replayCmd.Flags().StringVarP(&flagOutput, "output", "o", "",
		"file to write to instead of stdout")
	replayCmd.Flags().BoolVar(&flagStripDirs, "strip-dirs", false,
		"drop directories from module paths")
	replayCmd.Flags().BoolVar(&flagContexts, "contexts", false,
		"also print per-context statistics (text format only)")
	replayCmd.Flags().BoolVar(&flagChildren, "children", false,
		"print the callees of every function (text format only)")
	replayCmd.Flags().BoolVar(&flagBuiltins, "builtins", false,
		"report native functions")
	replayCmd.Flags().StringVar(&flagBucket, "snapshot-bucket", "",
		"where to save a snapshot: a gocloud bucket url (file://, gs://), gcs://<bucket> or badger://<dir>")
}

type replayOptions struct {
	Clock     timing.ClockType
	SortKey   stats.SortKey
	Order     stats.Order
	Format    string
	StripDirs bool
	Contexts  bool
	Children  bool
	Builtins  bool
	Command   []string
}

func optionsFromFlags() (replayOptions, error) {
	var (
		opts replayOptions
		err  error
	)
	opts.Clock, err = timing.ParseClockType(flagClock)
	if err != nil {
		return opts, err
	}
	opts.SortKey, err = stats.ParseSortKey(flagSort)
	if err != nil {
		return opts, err
	}
	opts.Order, err = stats.ParseOrder(flagOrder)
	if err != nil {
		return opts, err
	}
	switch flagFormat {
	case "text", "callgrind", "json":
	default:
		return opts, fmt.Errorf("unknown format %q", flagFormat)
	}
	opts.Format = flagFormat
	opts.StripDirs = flagStripDirs
	opts.Contexts = flagContexts
	opts.Children = flagChildren
	opts.Builtins = flagBuiltins
	opts.Command = os.Args
	return opts, nil
}

// replayRecording runs the events of rd through a fresh profiler and
// stops it.
func replayRecording(ctx context.Context, rd io.Reader, opts replayOptions) (*profiler.Profiler, error) {
	r, err := replay.New(opts.Clock)
	if err != nil {
		return nil, err
	}
	r.Start(opts.Builtins)
	n, err := r.Run(ctx, rd)
	r.Profiler().Stop()
	if err != nil {
		return nil, err
	}
	log.Debug().Int("events", n).Msg("recording replayed")
	return r.Profiler(), nil
}

func render(w io.Writer, p *profiler.Profiler, opts replayOptions) (*stats.FuncStats, error) {
	fs := stats.Collect(p, profiler.Filter{})
	if opts.StripDirs {
		fs.StripDirs()
	}
	fs.Sort(opts.SortKey, opts.Order)

	switch opts.Format {
	case "callgrind":
		return fs, fs.WriteCallgrind(w, stats.CallgrindHeader{
			Creator: "callprof",
			PID:     os.Getpid(),
			Command: opts.Command,
		})
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return fs, enc.Encode(fs.Snapshot("", time.Now().UTC()))
	}

	if err := fs.Print(w, nil); err != nil {
		return fs, err
	}
	if opts.Children {
		for _, f := range fs.Funcs {
			if len(f.Children) == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, "\nname: %s\n", f.FullName); err != nil {
				return fs, err
			}
			if err := f.PrintChildren(w, nil); err != nil {
				return fs, err
			}
		}
	}
	if opts.Contexts {
		if err := stats.CollectContexts(p).Print(w, nil); err != nil {
			return fs, err
		}
	}
	return fs, nil
}

func saveSnapshot(ctx context.Context, bucketURL string, fs *stats.FuncStats) (string, error) {
	store, closer, err := openSnapshotStore(ctx, bucketURL)
	if err != nil {
		return "", err
	}
	defer closer.Close()
	sn := fs.Snapshot(uuid.New().String(), time.Now().UTC())
	name := "snapshots/" + sn.ID
	return name, sn.Save(ctx, store, name)
}

func runReplay(cmd *cobra.Command, args []string) {
	opts, err := optionsFromFlags()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	f, err := os.Open(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open recording")
	}
	defer f.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := replayRecording(ctx, f, opts)
	if err != nil {
		log.Fatal().Err(err).Str("recording", args[0]).Msg("cannot replay recording")
	}

	out := io.Writer(os.Stdout)
	if flagOutput != "" {
		o, err := os.Create(flagOutput)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot create output file")
		}
		defer o.Close()
		out = o
	}
	fs, err := render(out, p, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot write statistics")
	}

	if flagBucket != "" {
		name, err := saveSnapshot(ctx, flagBucket, fs)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot save snapshot")
		}
		log.Info().Str("object", name).Msg("snapshot saved")
	}
}
