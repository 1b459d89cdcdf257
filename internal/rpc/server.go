// Package rpc serves the guardian's tool surface over newline-delimited
// JSON-RPC 2.0 on stdio, one session per child process.
//
// The assistant spawns `cg serve` and calls the eight tools to
// introspect and remediate its own environment. Handlers never emit a
// stack trace: every failure becomes a structured
// {code, message, hint, cause} payload.
package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/store"
)

// serverName identifies this tool server in the initialize handshake.
const serverName = "claudeguard"

// Server is one stdio RPC session.
type Server struct {
	cfg    *config.Config
	st     *store.Store
	logger *log.Logger
	tools  map[string]tool
}

// tool pairs a handler with its listing metadata.
type tool struct {
	description string
	inputSchema map[string]any
	handler     func(params json.RawMessage) (string, error)
}

// NewServer creates a session over the given config. logger receives
// diagnostics (stderr is conventional; stdout carries the protocol).
func NewServer(cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	s := &Server{
		cfg:    cfg,
		st:     store.New(cfg, logger),
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve reads newline-delimited requests from r and writes responses to
// w until EOF. The loop survives malformed input; only a transport-level
// write failure ends the session early.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := s.write(out, newErrorResponse(nil, codeParseError, "parse error")); err != nil {
				return err
			}
			continue
		}

		resp := s.dispatch(&req)
		if resp == nil {
			continue // notification
		}
		if err := s.write(out, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) write(out *bufio.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return out.Flush()
}

// dispatch routes one request. Requests without an id are notifications
// and produce no response.
func (s *Server) dispatch(req *Request) *Response {
	isNotification := len(req.ID) == 0

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = newResponse(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": serverName, "version": "1.0.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		})

	case "notifications/initialized":
		return nil

	case "ping":
		resp = newResponse(req.ID, map[string]any{})

	case "tools/list":
		resp = newResponse(req.ID, map[string]any{"tools": s.listTools()})

	case "tools/call":
		resp = s.callTool(req)

	default:
		resp = newErrorResponse(req.ID, codeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}

	if isNotification {
		return nil
	}
	return resp
}

// listTools renders tool metadata in registration order.
func (s *Server) listTools() []map[string]any {
	var listed []map[string]any
	for _, name := range toolOrder {
		t := s.tools[name]
		schema := t.inputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		listed = append(listed, map[string]any{
			"name":        name,
			"description": t.description,
			"inputSchema": schema,
		})
	}
	return listed
}

// callTool runs one tool inside the error boundary.
func (s *Server) callTool(req *Request) *Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, codeInvalidParams, "invalid tools/call params")
	}

	t, ok := s.tools[params.Name]
	if !ok {
		return newErrorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("unknown tool: %s", params.Name))
	}

	text, isErr := s.boundary(params.Name, t.handler, params.Arguments)
	return newResponse(req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isErr,
	})
}
