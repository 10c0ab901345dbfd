package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/chazu/embedrun/driver"
	"github.com/chazu/embedrun/journal"
	"github.com/chazu/embedrun/server"
	"github.com/chazu/embedrun/vm"
)

// runRequest is what the command line asked to run.
type runRequest struct {
	op       driver.Op
	source   string
	filename string
	bytecode []byte
	level    driver.PrintLevel
}

func buildRequest(source, sourceFile, bytecode string, args []string) (runRequest, error) {
	set := 0
	for _, s := range []string{source, sourceFile, bytecode} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return runRequest{}, fmt.Errorf("-e, -f and -b are mutually exclusive")
	}
	if sourceFile == "" && len(args) > 0 && set == 0 {
		sourceFile = args[0]
	}

	switch {
	case source != "":
		return runRequest{op: driver.OpRunSource, source: source}, nil
	case sourceFile != "":
		src, err := os.ReadFile(sourceFile)
		if err != nil {
			return runRequest{}, err
		}
		return runRequest{op: driver.OpRunSourceFile, source: string(src), filename: sourceFile}, nil
	case bytecode != "":
		bc, err := os.ReadFile(bytecode)
		if err != nil {
			return runRequest{}, err
		}
		return runRequest{op: driver.OpRunBytecode, bytecode: bc, filename: bytecode}, nil
	}

	src, ok, err := stdinSource()
	if err != nil {
		return runRequest{}, err
	}
	if ok {
		return runRequest{op: driver.OpRunSourceFile, source: src, filename: "<stdin>"}, nil
	}
	return runRequest{op: driver.OpRun}, nil
}

// runLocal runs req on the session and reports whether it raised.
func runLocal(d *driver.Driver, s *vm.Session, req runRequest, j *journal.Journal) bool {
	started := time.Now()

	var raised bool
	var diagnostic string
	switch req.op {
	case driver.OpRun:
		raised = d.Run(s, req.level)
	case driver.OpRunBytecode:
		raised = d.RunBytecode(s, req.bytecode, req.level)
	case driver.OpRunSource:
		raised = d.RunSource(s, req.source, req.level)
	case driver.OpRunSourceFile:
		diagnostic = d.RunSourceFile(s, req.source, req.filename, req.level)
		raised = diagnostic != ""
	}

	if j != nil {
		label := req.filename
		if label == "" && req.op == driver.OpRun {
			label = d.ImageName()
		}
		_, err := j.Record(context.Background(), journal.Entry{
			Op:         req.op.String(),
			Label:      label,
			Level:      int(req.level),
			Raised:     raised,
			Diagnostic: diagnostic,
			StartedAt:  started,
			Duration:   time.Since(started),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return raised
}

// runRemote sends req to a server and returns the process exit code.
func runRemote(url string, req runRequest) int {
	client := server.NewClient(http.DefaultClient, url)
	ctx := context.Background()

	var res *server.Result
	var err error
	switch req.op {
	case driver.OpRun:
		res, err = client.Run(ctx, req.level)
	case driver.OpRunBytecode:
		res, err = client.RunBytecode(ctx, req.bytecode, req.level)
	case driver.OpRunSource:
		res, err = client.RunSource(ctx, req.source, req.level)
	case driver.OpRunSourceFile:
		res, err = client.RunSourceFile(ctx, req.source, req.filename, req.level)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	fmt.Print(res.Output)
	if res.Raised {
		return 1
	}
	return 0
}
