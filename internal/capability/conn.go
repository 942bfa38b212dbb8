package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Conn is one live connection to a capability server. Implementations
// must be safe for concurrent callers; request/response correlation is
// the transport's job.
type Conn interface {
	ListTools(ctx context.Context) ([]RemoteTool, error)
	// CallTool invokes a tool. isError distinguishes a tool-level
	// failure (the server ran the tool, the tool reported an error)
	// from transport failure, which comes back as err.
	CallTool(ctx context.Context, name string, args map[string]any) (output string, isError bool, err error)
	Close() error
}

// Dialer establishes a connection for a server config. The default
// dialer speaks the JSON-RPC 2.0 capability protocol; tests substitute
// fakes.
type Dialer func(ctx context.Context, cfg ServerConfig) (Conn, error)

const clientName = "patina"

// DialServer is the production dialer. Command configs launch the server
// as a child process and speak over its standard streams; URL configs
// connect to an event-stream endpoint.
func DialServer(ctx context.Context, cfg ServerConfig) (Conn, error) {
	var (
		client *mcpclient.Client
		err    error
	)

	switch {
	case cfg.Command != "":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		client, err = mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("%w: launch %s: %v", ErrTransport, cfg.Name, err)
		}
	case cfg.URL != "":
		client, err = mcpclient.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("%w: connect %s: %v", ErrTransport, cfg.Name, err)
		}
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: connect %s: %v", ErrTransport, cfg.Name, err)
		}
	default:
		return nil, fmt.Errorf("capability: server %s has neither command nor url", cfg.Name)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName}

	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: initialize %s: %v", ErrTransport, cfg.Name, err)
	}

	return &mcpConn{server: cfg.Name, client: client}, nil
}

type mcpConn struct {
	server string
	client *mcpclient.Client
}

func (c *mcpConn) ListTools(ctx context.Context) ([]RemoteTool, error) {
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: list tools on %s: %v", ErrTransport, c.server, err)
	}

	tools := make([]RemoteTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: tool %s on %s has unmarshalable schema: %v", ErrProtocol, t.Name, c.server, err)
		}
		tools = append(tools, RemoteTool{
			Server:      c.server,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

func (c *mcpConn) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("%w: call %s on %s: %v", ErrTransport, name, c.server, err)
	}
	if res == nil {
		return "", false, fmt.Errorf("%w: empty response for %s on %s", ErrProtocol, name, c.server)
	}

	var parts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), res.IsError, nil
}

func (c *mcpConn) Close() error {
	return c.client.Close()
}
