// embedrun CLI - runs the embedded program, images or Starlark source
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/embedrun/app"
	"github.com/chazu/embedrun/config"
	"github.com/chazu/embedrun/driver"
	"github.com/chazu/embedrun/journal"
	"github.com/chazu/embedrun/server"
	"github.com/chazu/embedrun/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(args []string) int {
	flags := flag.NewFlagSet("embedrun", flag.ContinueOnError)
	printLevel := flags.Int("p", -1, "Print level: 0 silent, 1 errors, 2 errors and results (default from config)")
	source := flags.String("e", "", "Run source text")
	sourceFile := flags.String("f", "", "Run a source file, labelling diagnostics with its name")
	bytecode := flags.String("b", "", "Run a compiled image file")
	compileFile := flags.String("c", "", "Compile a source file to an image instead of running it")
	output := flags.String("o", "", "Output path for -c (default: <file>.image)")
	configPath := flags.String("config", "", "Config file (default: nearest embedrun.toml or embedrun.yaml)")
	journalPath := flags.String("journal", "", "Record runs in this SQLite journal")
	serveAddr := flags.String("serve", "", "Serve the run service on this address instead of running")
	remote := flags.String("remote", "", "Send the run to an embedrun server at this URL")
	verbosity := flags.Int("v", 0, "Log verbosity (overrides config when non-zero)")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: embedrun [options] [file.star]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the embedded program, or the given source or image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  embedrun                        # Run the embedded image\n")
		fmt.Fprintf(os.Stderr, "  embedrun -p 2 -e '1+1'          # Run source, print the result\n")
		fmt.Fprintf(os.Stderr, "  embedrun script.star            # Run a file\n")
		fmt.Fprintf(os.Stderr, "  echo 'print(1)' | embedrun      # Run source from stdin\n")
		fmt.Fprintf(os.Stderr, "  embedrun -c app.star -o app.image\n")
		fmt.Fprintf(os.Stderr, "  embedrun -b app.image -p 2\n")
		fmt.Fprintf(os.Stderr, "  embedrun -serve :4567           # Serve remote runs\n")
		fmt.Fprintf(os.Stderr, "  embedrun -remote http://localhost:4567 -e '1+1'\n")
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if err := applyOverrides(cfg, *printLevel, *journalPath, *verbosity); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	configureLogging(cfg)

	if *compileFile != "" {
		if err := compile(*compileFile, *output); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	req, err := buildRequest(*source, *sourceFile, *bytecode, flags.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	req.level = driver.PrintLevel(cfg.Run.PrintLevel)

	if *remote != "" {
		return runRemote(*remote, req)
	}

	mode := driver.LoadingMode(cfg.Run.LoadingMode)
	if *serveAddr == "" && !mode.Allows(req.op) {
		fmt.Fprintf(os.Stderr, "Error: %s is not available in loading mode %d\n", req.op, mode)
		return 2
	}

	d, err := newDriver(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	session := vm.New()
	d.Setup(session)

	var j *journal.Journal
	if path := cfg.JournalPath(); path != "" {
		j, err = journal.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer j.Close()
	}

	if *serveAddr != "" {
		opts := []server.ServerOption{server.WithLoadingMode(mode)}
		if j != nil {
			opts = append(opts, server.WithJournal(j))
		}
		srv := server.New(session, d, opts...)
		defer srv.Stop()
		if err := srv.ListenAndServe(*serveAddr); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	if runLocal(d, session, req, j) {
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// applyOverrides applies command-line values over the loaded config and
// validates the result. Negative printLevel and zero verbosity mean the
// flag was not given.
func applyOverrides(cfg *config.Config, printLevel int, journalPath string, verbosity int) error {
	if printLevel >= 0 {
		cfg.Run.PrintLevel = printLevel
	}
	if journalPath != "" {
		cfg.Journal.Path = journalPath
	}
	if verbosity != 0 {
		cfg.Log.Verbosity = verbosity
	}
	return cfg.Validate()
}

func configureLogging(cfg *config.Config) {
	var path *string
	if file := cfg.LogFile(); file != "" {
		path = &file
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
}

// newDriver builds the driver from configuration: the image comes from
// the config when set, otherwise from the embedded app.
func newDriver(cfg *config.Config) (*driver.Driver, error) {
	var img []byte
	var err error
	if path := cfg.ImagePath(); path != "" {
		img, err = os.ReadFile(path)
	} else {
		img, err = app.Image()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load image: %w", err)
	}

	var roots []fs.FS
	for _, p := range cfg.ModulePaths() {
		roots = append(roots, os.DirFS(p))
	}
	roots = append(roots, app.FS())

	return driver.New(
		driver.WithImage(img),
		driver.WithRequire(cfg.RequireEnabled(driver.HasRequire)),
		driver.WithModules(roots...),
	), nil
}

func compile(path, out string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	bc, err := vm.New().Compile(filepath.Base(path), string(src))
	if err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".image"
	}
	if err := os.WriteFile(out, bc, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(bc))
	return nil
}

// stdinSource returns piped stdin, or ok=false when stdin is a terminal.
func stdinSource() (string, bool, error) {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "", false, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}
