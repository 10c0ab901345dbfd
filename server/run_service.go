package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/embedrun/driver"
	"github.com/chazu/embedrun/image"
	"github.com/chazu/embedrun/journal"
	"github.com/chazu/embedrun/vm"
)

// ServiceName is the fully qualified name of the run service.
const ServiceName = "embedrun.v1.RunService"

// ErrStopped is returned once the VM worker has shut down.
var ErrStopped = errors.New("vm worker stopped")

var methods = map[driver.Op]string{
	driver.OpRun:           "Run",
	driver.OpRunBytecode:   "RunBytecode",
	driver.OpRunSource:     "RunSource",
	driver.OpRunSourceFile: "RunSourceFile",
}

// Procedure returns the Connect/gRPC procedure path for op.
func Procedure(op driver.Op) string {
	return "/" + ServiceName + "/" + methods[op]
}

// RunService runs programs on a shared session on behalf of remote
// callers. Requests and responses are google.protobuf.Struct messages:
//
//	request:  source, filename, bytecode (base64), print_level
//	response: id, raised, diagnostic, output
type RunService struct {
	worker  *VMWorker
	driver  *driver.Driver
	mode    driver.LoadingMode
	journal *journal.Journal
}

// NewRunService creates a RunService. j may be nil.
func NewRunService(worker *VMWorker, d *driver.Driver, mode driver.LoadingMode, j *journal.Journal) *RunService {
	return &RunService{
		worker:  worker,
		driver:  d,
		mode:    mode,
		journal: j,
	}
}

type runRequest struct {
	source   string
	filename string
	bytecode []byte
	level    driver.PrintLevel
}

type runOutcome struct {
	raised     bool
	diagnostic string
	output     string
}

// Run handles one request for op.
func (s *RunService) Run(ctx context.Context, op driver.Op, msg *structpb.Struct) (*structpb.Struct, error) {
	if !s.mode.Allows(op) {
		return nil, connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("%s is not available in loading mode %d", op, s.mode))
	}

	req, err := parseRequest(op, msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	started := time.Now()
	result, err := s.worker.Do(func(sess *vm.Session) interface{} {
		return s.execute(sess, op, req)
	})
	if err != nil {
		log.Errorf("%s failed: %s", op, err.Error())
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	outcome := result.(runOutcome)

	var id string
	if s.journal != nil {
		entry, err := s.journal.Record(ctx, journal.Entry{
			Op:         op.String(),
			Label:      s.label(op, req),
			Level:      int(req.level),
			Raised:     outcome.raised,
			Diagnostic: outcome.diagnostic,
			StartedAt:  started,
			Duration:   time.Since(started),
		})
		if err != nil {
			log.Warningf("%s", err.Error())
		}
		id = entry.ID
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"id":         id,
		"raised":     outcome.raised,
		"diagnostic": outcome.diagnostic,
		"output":     outcome.output,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return resp, nil
}

// label names what a run executed: the source filename, or the name
// recorded in the image.
func (s *RunService) label(op driver.Op, req runRequest) string {
	if req.filename != "" {
		return req.filename
	}
	switch op {
	case driver.OpRun:
		return s.driver.ImageName()
	case driver.OpRunBytecode:
		return image.NameOf(req.bytecode)
	}
	return ""
}

// execute runs on the VM worker goroutine. Output printed during the run
// is captured for the response.
func (s *RunService) execute(sess *vm.Session, op driver.Op, req runRequest) runOutcome {
	var out bytes.Buffer
	prev := sess.SetOutput(&out)
	defer sess.SetOutput(prev)

	var o runOutcome
	switch op {
	case driver.OpRun:
		o.raised = s.driver.Run(sess, req.level)
	case driver.OpRunBytecode:
		o.raised = s.driver.RunBytecode(sess, req.bytecode, req.level)
	case driver.OpRunSource:
		o.raised = s.driver.RunSource(sess, req.source, req.level)
	case driver.OpRunSourceFile:
		o.diagnostic = s.driver.RunSourceFile(sess, req.source, req.filename, req.level)
		o.raised = o.diagnostic != ""
	}
	o.output = out.String()
	return o
}

func parseRequest(op driver.Op, msg *structpb.Struct) (runRequest, error) {
	fields := msg.GetFields()
	req := runRequest{
		source:   fields["source"].GetStringValue(),
		filename: fields["filename"].GetStringValue(),
		level:    driver.PrintLevel(fields["print_level"].GetNumberValue()),
	}

	switch op {
	case driver.OpRunBytecode:
		encoded := fields["bytecode"].GetStringValue()
		if encoded == "" {
			return req, fmt.Errorf("bytecode is required")
		}
		bc, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return req, fmt.Errorf("bytecode: %w", err)
		}
		req.bytecode = bc
	case driver.OpRunSource:
		if req.source == "" {
			return req, fmt.Errorf("source is required")
		}
	case driver.OpRunSourceFile:
		if req.source == "" {
			return req, fmt.Errorf("source is required")
		}
		if req.filename == "" {
			return req, fmt.Errorf("filename is required")
		}
	}
	return req, nil
}
