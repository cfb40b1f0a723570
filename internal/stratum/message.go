// Package stratum implements the dial-out stratum subprotocol client
// (spec §4.4): the coordinator connects out to an upstream pool,
// subscribes and authorizes, then reacts to mining.notify and
// mining.set_difficulty pushes. Message envelope shapes below are
// unchanged from the line-delimited JSON-RPC wire format; only the
// direction each method travels is inverted relative to a
// pool-side stratum server.
package stratum

import (
	"encoding/json"
	"fmt"
)

// Request is an outbound stratum call (mining.subscribe,
// mining.authorize, mining.submit, mining.suggest_difficulty).
type Request struct {
	ID     int           `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response answers a Request by ID.
type Response struct {
	ID     int         `json:"id"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

// Notification is a server-pushed message with no caller-assigned ID.
type Notification struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// ToJSON serializes r as a newline-delimited JSON line.
func (r *Request) ToJSON() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal stratum request: %w", err)
	}
	return append(data, '\n'), nil
}

// NewSubscribeRequest builds mining.subscribe.
func NewSubscribeRequest(id int, userAgent, sessionID string) *Request {
	params := []interface{}{userAgent}
	if sessionID != "" {
		params = append(params, sessionID)
	}
	return &Request{ID: id, Method: "mining.subscribe", Params: params}
}

// NewAuthorizeRequest builds mining.authorize.
func NewAuthorizeRequest(id int, user, pass string) *Request {
	return &Request{ID: id, Method: "mining.authorize", Params: []interface{}{user, pass}}
}

// NewSubmitRequest builds mining.submit:
// [worker, job_id, extranonce2, ntime, nonce].
func NewSubmitRequest(id int, worker, jobID, extranonce2Hex, ntimeHex, nonceHex string) *Request {
	return &Request{
		ID:     id,
		Method: "mining.submit",
		Params: []interface{}{worker, jobID, extranonce2Hex, ntimeHex, nonceHex},
	}
}

// NewSuggestDifficultyRequest builds the optional mining.suggest_difficulty.
func NewSuggestDifficultyRequest(id int, difficulty float64) *Request {
	return &Request{ID: id, Method: "mining.suggest_difficulty", Params: []interface{}{difficulty}}
}

// ParseLine parses one newline-delimited JSON message received from
// the pool. It is ambiguous between Notification and Response by
// design (stratum multiplexes both over one line-delimited stream);
// callers disambiguate by checking whether Method is empty (a reply)
// before matching its ID against a pending request id.
func ParseLine(line []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(line, &n); err != nil {
		return nil, fmt.Errorf("parse stratum line: %w", err)
	}
	return &n, nil
}

// ParseResponse parses the same line strictly as a Response, recovering
// Result/Error for lines that ParseLine identified as replies (Method == "").
func ParseResponse(line []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, fmt.Errorf("parse stratum response: %w", err)
	}
	return &r, nil
}
