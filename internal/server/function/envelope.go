// Package function implements the auth endpoint as a single cloud-function
// style handler: one JSON body with an "action" field, one JSON response
// envelope with status code, headers and body.
package function

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/eventhub/internal/common"
)

// Request is the invocation event.
type Request struct {
	HTTPMethod            string            `json:"httpMethod"`
	Headers               map[string]string `json:"headers"`
	Body                  string            `json:"body"`
	IsBase64Encoded       bool              `json:"isBase64Encoded"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
}

// Response is the invocation result.
type Response struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// Header returns the value of header name, ignoring case.
func (r Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// BearerToken extracts the session token from X-Auth-Token, falling back to
// "Authorization: Bearer <token>".
func (r Request) BearerToken() string {
	if tok := strings.TrimSpace(r.Header(common.AuthTokenHeaderName)); tok != "" {
		return tok
	}
	scheme, tok, ok := strings.Cut(strings.TrimSpace(r.Header(common.AuthorizationHeaderName)), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}

func (r Request) decodedBody() ([]byte, error) {
	if !r.IsBase64Encoded {
		return []byte(r.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

func corsHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin": "*",
	}
}

func preflight() Response {
	h := corsHeaders()
	h["Access-Control-Allow-Methods"] = "POST, OPTIONS"
	h["Access-Control-Allow-Headers"] = "Content-Type, X-Auth-Token, Authorization"
	h["Access-Control-Max-Age"] = "86400"
	return Response{StatusCode: 200, Headers: h, Body: ""}
}

func jsonResponse(status int, v any) Response {
	h := corsHeaders()
	h["Content-Type"] = "application/json"

	body, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: 500, Headers: h, Body: `{"error":"internal server error"}`}
	}
	return Response{StatusCode: status, Headers: h, Body: string(body)}
}

type errorBody struct {
	Error string `json:"error"`
}
