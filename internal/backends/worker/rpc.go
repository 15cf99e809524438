package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
)

// maxFrameBytes caps the body size a worker may announce in one frame.
const maxFrameBytes = 64 << 20

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *jsonrpcErrorData `json:"data,omitempty"`
}

// jsonrpcErrorData carries the backend error kind used for classification.
type jsonrpcErrorData struct {
	Kind string `json:"kind"`
}

func normalizeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '"' {
		if unquoted, err := strconv.Unquote(trimmed); err == nil {
			return unquoted
		}
		trimmed = strings.Trim(trimmed, "\"")
	}
	return trimmed
}

func (b *Backend) writeRawFrame(data []byte) error {
	if _, err := fmt.Fprintf(b.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := b.writer.Write(data); err != nil {
		return err
	}
	return b.writer.Flush()
}

func (b *Backend) readResponse(ctx context.Context) (jsonrpcResponse, []byte, error) {
	type result struct {
		resp jsonrpcResponse
		raw  []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		r, raw, err := b.readResponseBlocking()
		done <- result{resp: r, raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return jsonrpcResponse{}, nil, ctx.Err()
	case res := <-done:
		return res.resp, res.raw, res.err
	}
}

func (b *Backend) readResponseBlocking() (jsonrpcResponse, []byte, error) {
	headers := make(map[string]string)
	for {
		line, err := b.reader.ReadString('\n')
		if err != nil {
			return jsonrpcResponse{}, nil, err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			headers[strings.ToLower(strings.TrimSpace(line[:idx]))] = strings.TrimSpace(line[idx+1:])
		}
	}

	cl, ok := headers["content-length"]
	if !ok {
		return jsonrpcResponse{}, nil, fmt.Errorf("missing Content-Length header")
	}

	var length int
	if _, err := fmt.Sscanf(cl, "%d", &length); err != nil {
		return jsonrpcResponse{}, nil, fmt.Errorf("invalid Content-Length: %w", err)
	}
	if length < 0 || length > maxFrameBytes {
		return jsonrpcResponse{}, nil, fmt.Errorf("invalid Content-Length %d: want 0..%d", length, maxFrameBytes)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(b.reader, body); err != nil {
		return jsonrpcResponse{}, nil, err
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return jsonrpcResponse{}, body, err
	}
	return resp, body, nil
}

// rpcCall sends one request and decodes its result into out (when non-nil).
// A cancelled or failed exchange leaves the stream in an unknown position, so
// the backend is marked broken and refuses further calls.
func (b *Backend) rpcCall(ctx context.Context, method string, params any, out any) error {
	b.rpcMu.Lock()
	defer b.rpcMu.Unlock()

	if broken := b.Broken(); broken != nil {
		return fmt.Errorf("worker unusable after earlier failure: %w", broken)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.seq++
	id := b.seq
	data, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	logging.LogRequest("MERGEVAL->WORKER", b.Name(), method, data)

	if err := b.writeRawFrame(data); err != nil {
		b.markBroken(err)
		return fmt.Errorf("write %s request: %w", method, err)
	}

	resp, raw, err := b.readResponse(ctx)
	if err != nil {
		b.markBroken(err)
		return fmt.Errorf("read %s response: %w", method, err)
	}
	logging.LogRequest("WORKER->MERGEVAL", b.Name(), method, raw)

	if respID := normalizeID(resp.ID); respID != "" && respID != strconv.FormatInt(id, 10) {
		err := fmt.Errorf("response id %s does not match request id %d", respID, id)
		b.markBroken(err)
		return err
	}

	if resp.Error != nil {
		kind := ""
		if resp.Error.Data != nil {
			kind = resp.Error.Data.Kind
		}
		return &backends.RemoteError{Code: kind, Message: resp.Error.Message}
	}

	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (b *Backend) markBroken(err error) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.broken == nil {
		b.broken = err
	}
}

// Broken returns the failure that made the stream unusable, or nil. It does
// not wait for an in-flight call.
func (b *Backend) Broken() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.broken
}
