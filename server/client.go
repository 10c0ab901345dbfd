package server

import (
	"context"
	"encoding/base64"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/embedrun/driver"
)

// Result is the outcome of a remote run.
type Result struct {
	ID         string
	Raised     bool
	Diagnostic string
	Output     string
}

// Client calls a remote RunServer over Connect.
type Client struct {
	clients map[driver.Op]*connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{clients: make(map[driver.Op]*connect.Client[structpb.Struct, structpb.Struct])}
	for op := range methods {
		c.clients[op] = connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+Procedure(op), opts...)
	}
	return c
}

// Run runs the server's embedded image.
func (c *Client) Run(ctx context.Context, level driver.PrintLevel) (*Result, error) {
	return c.call(ctx, driver.OpRun, map[string]interface{}{"print_level": int(level)})
}

// RunBytecode runs an image on the server.
func (c *Client) RunBytecode(ctx context.Context, bc []byte, level driver.PrintLevel) (*Result, error) {
	return c.call(ctx, driver.OpRunBytecode, map[string]interface{}{
		"bytecode":    base64.StdEncoding.EncodeToString(bc),
		"print_level": int(level),
	})
}

// RunSource runs source text on the server.
func (c *Client) RunSource(ctx context.Context, src string, level driver.PrintLevel) (*Result, error) {
	return c.call(ctx, driver.OpRunSource, map[string]interface{}{
		"source":      src,
		"print_level": int(level),
	})
}

// RunSourceFile runs labelled source text on the server.
func (c *Client) RunSourceFile(ctx context.Context, src, filename string, level driver.PrintLevel) (*Result, error) {
	return c.call(ctx, driver.OpRunSourceFile, map[string]interface{}{
		"source":      src,
		"filename":    filename,
		"print_level": int(level),
	})
}

func (c *Client) call(ctx context.Context, op driver.Op, fields map[string]interface{}) (*Result, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp, err := c.clients[op].CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resultFromStruct(resp.Msg), nil
}

func resultFromStruct(msg *structpb.Struct) *Result {
	f := msg.GetFields()
	return &Result{
		ID:         f["id"].GetStringValue(),
		Raised:     f["raised"].GetBoolValue(),
		Diagnostic: f["diagnostic"].GetStringValue(),
		Output:     f["output"].GetStringValue(),
	}
}
