// Package wire defines the JSON request/response bodies for the `GET
// /parameters`, `POST /oprf`, and `POST /query` RPCs (spec.md §6 External
// Interfaces), shared between internal/transport/httpclient and
// internal/transport/httpserver so the two never drift apart. Ciphertexts
// and contexts are base64-encoded byte blobs, matching
// original_source/moya/overlap/client_httpx.py's b64encode(...).serialize()
// convention.
package wire

import "encoding/base64"

// OPRFPoint is one (x, y) curve point on the wire, decimal strings so
// arbitrarily large coordinates survive JSON's float64-only number type
// (original_source's OPRFPoint = tuple[int, int]).
type OPRFPoint struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// OPRFRequest is the `POST /oprf` request body.
type OPRFRequest struct {
	Points []OPRFPoint `json:"points"`
}

// OPRFResponse is the `POST /oprf` response body.
type OPRFResponse struct {
	Points []OPRFPoint `json:"points"`
}

// QueryRequest is the `POST /query` request body. EncQuery is shaped
// [base-1][logB_ell]; a null cell means that window position wasn't sent
// because its exponent exceeds minibin_capacity (original_source's
// `None if v is None else b64encode(...)`).
type QueryRequest struct {
	PublicContext string      `json:"public_context"`
	EncQuery      [][]*string `json:"enc_query"`
}

// QueryResponse is the `POST /query` response body: one base64 ciphertext
// per alpha bucket-group answer.
type QueryResponse struct {
	Answers []string `json:"answers"`
}

// ErrorResponse is returned with a non-2xx status for every RPC, its Kind
// drawn from psierr.Kind so clients can branch on failure category
// (spec.md §7).
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// EncodeBytes base64-encodes a ciphertext/context blob for the wire.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
