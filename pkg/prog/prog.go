// Package prog provides the entry point to the bot: flag parsing, log
// setup, database lifecycle, and signal-driven shutdown.
package prog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"src.ikura.sh/pkg/config"
	"src.ikura.sh/pkg/db"
	"src.ikura.sh/pkg/interp"
	"src.ikura.sh/pkg/logutil"
	"src.ikura.sh/pkg/markov"
)

var logger = logutil.GetLogger("[main] ")

// Version of the bot, stamped by the build.
var Version = "0.4.0"

// Flags keeps command-line flags.
type Flags struct {
	Config string
	DB     string
	Log    string

	Create  bool
	Version bool
}

func newFlagSet(f *Flags) *flag.FlagSet {
	fs := flag.NewFlagSet("ikura", flag.ContinueOnError)
	// Error and usage are printed explicitly.
	fs.SetOutput(io.Discard)

	fs.StringVar(&f.Config, "config", "config.yml", "path to the configuration file")
	fs.StringVar(&f.DB, "db", "ikura.db", "path to the database")
	fs.StringVar(&f.Log, "log", "", "a file to write the log to")
	fs.BoolVar(&f.Create, "create", false, "create the database if it does not exist")
	fs.BoolVar(&f.Version, "version", false, "show version and quit")
	return fs
}

func usage(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(out, "Usage: ikura [flags]")
	fmt.Fprintln(out, "Supported flags:")
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// Run parses command-line flags and runs the bot. It returns the exit
// status of the program: 0 on clean shutdown, 2 on bad flags, and nonzero
// when the database cannot be loaded.
func Run(fds [3]*os.File, args []string) int {
	f := &Flags{}
	fs := newFlagSet(f)
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(fds[2], err)
		usage(fds[2], fs)
		return 2
	}

	if f.Version {
		fmt.Fprintln(fds[1], Version)
		return 0
	}

	if f.Log != "" {
		if err := logutil.SetOutputFile(f.Log); err != nil {
			fmt.Fprintln(fds[2], err)
		}
	} else if isatty.IsTerminal(fds[2].Fd()) {
		logutil.SetOutput(fds[2])
	}

	return run(fds, f)
}

func run(fds [3]*os.File, f *Flags) int {
	cfg, err := config.Load(f.Config)
	if err != nil {
		fmt.Fprintln(fds[2], "cannot load config:", err)
		return 1
	}

	itp := interp.New()
	mk := markov.New(markov.Config{
		MinLength:  cfg.Markov.MinLength,
		MaxRetries: cfg.Markov.MaxRetries,
		StripPings: cfg.Markov.StripPings,
	})

	store, err := db.Load(f.DB, f.Create, itp, mk)
	if err != nil {
		fmt.Fprintln(fds[2], "cannot load database:", err)
		return 1
	}

	mk.Start()
	store.StartSyncer(db.SyncInterval)

	// The chat transports attach here; they deliver inbound lines into
	// pkg/twitch and carry its outbound sends. They run on their own
	// goroutines with their own lifecycle, outside the core.

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Printf("received %v, shutting down", sig)

	mk.Shutdown()
	if err := store.Close(); err != nil {
		logger.Printf("final sync failed: %v", err)
	}
	return 0
}
