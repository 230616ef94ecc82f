package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const defaultRPCTimeout = 5 * time.Second

// rpcClient speaks aria2's JSON-RPC 2.0 dialect over HTTP POST. Every call
// carries the "token:<secret>" first parameter.
type rpcClient struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	nextID     atomic.Uint64
}

func newRPCClient(endpoint, secret string, httpClient *http.Client) *rpcClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRPCTimeout}
	}
	return &rpcClient{endpoint: endpoint, secret: secret, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, result any, params ...any) error {
	args := make([]any, 0, len(params)+1)
	if c.secret != "" {
		args = append(args, "token:"+c.secret)
	}
	args = append(args, params...)

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.nextID.Add(1), 10),
		Method:  method,
		Params:  args,
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Error != nil {
		decoded.Error.Method = method
		return decoded.Error
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
