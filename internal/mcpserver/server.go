package mcpserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"changkun.de/codextasks/internal/logger"
	"changkun.de/codextasks/internal/service"
)

const (
	mcpSchemaVersion = "2024-11-05"
	serverName       = "codex-tasks"
	serverVersion    = "0.1.0"
)

// Config is reported in the server's startup log line; it does not change
// behavior or the server's advertised identity.
type Config struct {
	StoreRoot  string
	ConfigPath string
}

// Server drives a single MCP session over a reader/writer pair, reusing
// one Service instance (and its archive cache) for the whole session.
type Server struct {
	svc *service.Service
	cfg Config
}

// New creates a Server backed by svc.
func New(svc *service.Service, cfg Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Run reads line-delimited JSON-RPC messages from r and writes responses
// to w until the client sends "shutdown", the input is exhausted, or an
// unrecoverable I/O error occurs.
func (s *Server) Run(r io.Reader, w io.Writer) error {
	logger.MCP.Info("mcp server starting",
		"store_root", orDefault(s.cfg.StoreRoot), "config", orDefault(s.cfg.ConfigPath))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	writer := bufio.NewWriter(w)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			logger.MCP.Warn("ignoring malformed message", "error", err)
			continue
		}

		if req.isNotification() {
			logger.MCP.Info("ignoring unsupported client notification", "method", req.Method)
			continue
		}

		shutdown, err := s.handleRequest(req, writer)
		if err != nil {
			return err
		}
		if shutdown {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read MCP input: %w", err)
	}
	return nil
}

func orDefault(v string) string {
	if v == "" {
		return "<default>"
	}
	return v
}

// handleRequest dispatches a single request and reports whether the
// session should end after it.
func (s *Server) handleRequest(req request, w *bufio.Writer) (bool, error) {
	switch req.Method {
	case "initialize":
		return false, s.handleInitialize(req, w)
	case "ping":
		return false, writeResult(w, req.ID, map[string]string{"status": "ok"})
	case "shutdown":
		if err := writeResult(w, req.ID, map[string]string{"status": "shutting_down"}); err != nil {
			return true, err
		}
		return true, nil
	case "tools/list":
		return false, writeResult(w, req.ID, toolsListResult())
	case "tools/call":
		return false, s.handleToolsCall(req, w)
	default:
		return false, writeError(w, req.ID, errCodeMethodNotFound, fmt.Sprintf("method '%s' is not implemented", req.Method))
	}
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (s *Server) handleInitialize(req request, w *bufio.Writer) error {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writeError(w, req.ID, errCodeInvalidParams, fmt.Sprintf("invalid initialize params: %v", err))
		}
	}

	logger.MCP.Info("initialize",
		"client", params.ClientInfo.Name, "version", params.ClientInfo.Version,
		"protocol", params.ProtocolVersion)

	result := map[string]interface{}{
		"protocolVersion": mcpSchemaVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]string{
			"name":    serverName,
			"title":   "Codex Tasks MCP Server",
			"version": serverVersion,
		},
		"instructions": "Codex Tasks MCP server ready.",
	}
	if err := writeResult(w, req.ID, result); err != nil {
		return err
	}
	return writeNotification(w, "notifications/initialized", nil)
}

func writeResult(w *bufio.Writer, id json.RawMessage, result interface{}) error {
	return writeMessage(w, response{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w *bufio.Writer, id json.RawMessage, code int, message string) error {
	return writeMessage(w, response{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}})
}

func writeNotification(w *bufio.Writer, method string, params interface{}) error {
	return writeMessage(w, notification{JSONRPC: jsonRPCVersion, Method: method, Params: params})
}

func writeMessage(w *bufio.Writer, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize MCP message: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("write MCP message: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write MCP message terminator: %w", err)
	}
	return w.Flush()
}
