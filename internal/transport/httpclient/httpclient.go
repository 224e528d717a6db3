// Package httpclient implements clientcore.Helper over plain net/http,
// grounded on original_source/moya/overlap/client_httpx.py's
// HTTPClientHelper (which wraps httpx.AsyncClient the same way this wraps
// *http.Client). No HTTP client library appears anywhere in the retrieval
// pack, so net/http is the justified stdlib choice here — see DESIGN.md.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/moya-app/overlap-psi/internal/oprf"
	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/transport/wire"
)

// Helper is an HTTP-backed clientcore.Helper talking to a single base URL
// (original_source's HTTPClientHelper.__init__(http_client)).
type Helper struct {
	baseURL string
	token   string
	client  *http.Client
}

// New builds a Helper against baseURL (e.g. "https://api.moya.app/v1/overlap/"),
// authenticating with token via an Authorization: Bearer header when
// non-empty. baseURL must end in "/" for url.JoinPath-style concatenation
// to land on the right path.
func New(baseURL, token string, client *http.Client) *Helper {
	if client == nil {
		client = http.DefaultClient
	}
	return &Helper{baseURL: baseURL, token: token, client: client}
}

// FetchParameters retrieves the server's negotiated Parameters via `GET
// parameters` (original_source's HTTPClientHelper.get_client).
func (h *Helper) FetchParameters(ctx context.Context) (psiparams.Parameters, error) {
	var params psiparams.Parameters
	if err := h.do(ctx, http.MethodGet, "parameters", nil, &params); err != nil {
		return psiparams.Parameters{}, err
	}
	return params, nil
}

// OPRF implements clientcore.Helper (original_source's HTTPClientHelper.oprf).
func (h *Helper) OPRF(ctx context.Context, points []oprf.Point) ([]oprf.Point, error) {
	req := wire.OPRFRequest{Points: make([]wire.OPRFPoint, len(points))}
	for i, p := range points {
		req.Points[i] = wire.OPRFPoint{X: p.X.String(), Y: p.Y.String()}
	}

	var resp wire.OPRFResponse
	if err := h.do(ctx, http.MethodPost, "oprf", req, &resp); err != nil {
		return nil, err
	}

	out := make([]oprf.Point, len(resp.Points))
	for i, p := range resp.Points {
		x, ok := new(big.Int).SetString(p.X, 10)
		if !ok {
			return nil, psierr.New(psierr.ProtocolViolation, "httpclient.OPRF", fmt.Errorf("invalid x coordinate %q", p.X))
		}
		y, ok := new(big.Int).SetString(p.Y, 10)
		if !ok {
			return nil, psierr.New(psierr.ProtocolViolation, "httpclient.OPRF", fmt.Errorf("invalid y coordinate %q", p.Y))
		}
		out[i] = oprf.Point{X: x, Y: y}
	}
	return out, nil
}

// Query implements clientcore.Helper (original_source's HTTPClientHelper.run_query).
func (h *Helper) Query(ctx context.Context, publicContext []byte, encQuery [][][]byte) ([][]byte, error) {
	req := wire.QueryRequest{
		PublicContext: wire.EncodeBytes(publicContext),
		EncQuery:      make([][]*string, len(encQuery)),
	}
	for i, row := range encQuery {
		req.EncQuery[i] = make([]*string, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			s := wire.EncodeBytes(cell)
			req.EncQuery[i][j] = &s
		}
	}

	var resp wire.QueryResponse
	if err := h.do(ctx, http.MethodPost, "query", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]byte, len(resp.Answers))
	for i, s := range resp.Answers {
		b, err := wire.DecodeBytes(s)
		if err != nil {
			return nil, psierr.New(psierr.ProtocolViolation, "httpclient.Query", err)
		}
		out[i] = b
	}
	return out, nil
}

// do issues one request/response round trip against path, JSON-encoding
// body (if non-nil) and decoding the response into out.
func (h *Helper) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return psierr.New(psierr.ProtocolViolation, "httpclient.do", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return psierr.New(psierr.TransportFailure, "httpclient.do", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return psierr.New(psierr.TransportFailure, "httpclient.do", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp wire.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		kind := psierr.Kind(errResp.Kind)
		if kind == "" {
			kind = psierr.TransportFailure
		}
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return psierr.New(kind, "httpclient.do", fmt.Errorf("%s: %s", path, msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return psierr.New(psierr.ProtocolViolation, "httpclient.do", err)
	}
	return nil
}
