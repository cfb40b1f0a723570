package stratum

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/stratum/keepalive"
)

// State is the dial-out stratum client's connection state (spec §4.4).
type State int

const (
	Disconnected State = iota
	Subscribing
	Authorizing
	Active
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Subscribing:
		return "subscribing"
	case Authorizing:
		return "authorizing"
	case Active:
		return "active"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Job is the decoded content of a mining.notify push, handed to the
// work generator to build Work objects (spec §4.4/4.5).
type Job struct {
	JobID        string
	PrevHash     string
	Coinbase1    []byte
	Coinbase2    []byte
	MerkleBranch [][]byte
	Version      string
	NBits        string
	NTime        string
	CleanJobs    bool
}

// NotifyHandler receives each mining.notify push. clean==true means
// every queued and in-flight work for this pool must be invalidated
// before the new job is staged (spec §5 guarantee (c)).
type NotifyHandler func(job Job, clean bool)

// DifficultyHandler receives mining.set_difficulty pushes.
type DifficultyHandler func(diff float64)

// MessageHandler receives client.show_message text.
type MessageHandler func(msg string)

// Config configures a dial-out Client.
type Config struct {
	Addr      string // host:port
	UserAgent string
	User      string
	Pass      string

	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	MaxBackoff    time.Duration
	InitialBackoff time.Duration

	// Keepalive detects a pool that stops pushing notifications without
	// closing the TCP connection. Nil disables it; a zero-value Config
	// is filled in with keepalive.DefaultConfig().
	Keepalive *keepalive.Config

	OnNotify     NotifyHandler
	OnDifficulty DifficultyHandler
	OnMessage    MessageHandler
}

// Client is a single pool's dial-out stratum connection. It owns the
// reconnect loop, the subscribe/authorize handshake, extranonce2
// generation and mining.submit framing.
type Client struct {
	cfg Config

	mu        sync.Mutex
	conn      net.Conn
	state     State
	nonce1    string
	nonce2Sz  int
	sessionID string
	diff      float64

	nonce2 atomic.Uint64

	nextID atomic.Int32

	pending   map[int]chan *Response
	pendingMu sync.Mutex

	keepaliveMgr *keepalive.Manager

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Client. Call Run to start the connect/reconnect
// loop; it blocks until ctx is cancelled.
func New(cfg Config) *Client {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		pending: make(map[int]chan *Response),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if cfg.Keepalive != nil {
		kcfg := *cfg.Keepalive
		if kcfg.Validate() != nil {
			kcfg = keepalive.DefaultConfig()
		}
		c.keepaliveMgr = keepalive.NewManager(kcfg, func(string) { c.closeOnStaleConn() })
	}
	return c
}

// closeOnStaleConn is the keepalive timeout callback: it closes the
// live connection, which unblocks readLoop with an error and drives
// Run's normal reconnect path.
func (c *Client) closeOnStaleConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		log.Printf("[stratum] %s: no activity, closing connection", c.cfg.Addr)
		conn.Close()
	}
}

// State reports the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Difficulty reports the most recently pushed mining.set_difficulty value.
func (c *Client) Difficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diff
}

// Nonce1 and Nonce2Size report the extranonce subscription the pool
// assigned during mining.subscribe.
func (c *Client) Nonce1() string   { c.mu.Lock(); defer c.mu.Unlock(); return c.nonce1 }
func (c *Client) Nonce2Size() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.nonce2Sz }

// NextNonce2 atomically allocates the next extranonce2 value for this
// session and reports whether it wrapped past the configured byte
// width (the caller should mark the pool lagging and resubscribe on
// wrap, per spec §4.4 exhaustion handling).
func (c *Client) NextNonce2() (value uint64, wrapped bool) {
	sz := c.Nonce2Size()
	if sz <= 0 || sz > 8 {
		sz = 4
	}
	limit := uint64(1) << uint(8*sz)
	v := c.nonce2.Add(1) - 1
	return v % limit, v != 0 && v%limit == 0
}

// Run connects and serves until ctx is cancelled, reconnecting with
// exponential backoff (capped at cfg.MaxBackoff) on any error, and
// preserving the session id across reconnects so the pool can resume
// the prior subscription where it supports it.
func (c *Client) Run(ctx context.Context) {
	defer close(c.doneCh)
	backoff := c.cfg.InitialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		err := c.runOnce(ctx)
		if err == nil {
			return // ctx cancelled cleanly inside runOnce
		}

		c.setState(Reconnecting)
		log.Printf("[stratum] %s: connection lost: %v (retry in %s)", c.cfg.Addr, err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// Stop requests the run loop to exit and blocks until it has.
func (c *Client) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Client) runOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.keepaliveMgr != nil {
		c.keepaliveMgr.Start(c.cfg.Addr)
		defer c.keepaliveMgr.Stop(c.cfg.Addr)
	}

	readErrCh := make(chan error, 1)
	go c.readLoop(conn, readErrCh)

	c.setState(Subscribing)
	subID := c.nextRequestID()
	if _, err := c.call(subID, NewSubscribeRequest(subID, c.cfg.UserAgent, c.sessionIDSnapshot())); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.setState(Authorizing)
	authID := c.nextRequestID()
	if _, err := c.call(authID, NewAuthorizeRequest(authID, c.cfg.User, c.cfg.Pass)); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	c.setState(Active)
	log.Printf("[stratum] %s: active", c.cfg.Addr)

	select {
	case <-ctx.Done():
		return nil
	case <-c.stopCh:
		return nil
	case err := <-readErrCh:
		return err
	}
}

func (c *Client) sessionIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) nextRequestID() int {
	return int(c.nextID.Add(1))
}

// call sends req and blocks for its matching response.
func (c *Client) call(id int, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := req.ToJSON()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, fmt.Errorf("%s rejected: %v", req.Method, resp.Error)
		}
		if req.Method == "mining.subscribe" {
			c.applySubscribeResult(resp.Result)
		}
		return resp, nil
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("%s timed out", req.Method)
	}
}

// applySubscribeResult extracts nonce1/nonce2 size from a subscribe
// reply shaped [[[...subscriptions...]], extranonce1, extranonce2_size].
func (c *Client) applySubscribeResult(result interface{}) {
	arr, ok := result.([]interface{})
	if !ok || len(arr) < 3 {
		return
	}
	nonce1, _ := arr[1].(string)
	var sz int
	switch v := arr[2].(type) {
	case float64:
		sz = int(v)
	}

	var sessionID string
	if subs, ok := arr[0].([]interface{}); ok {
		for _, s := range subs {
			pair, ok := s.([]interface{})
			if ok && len(pair) >= 2 {
				if id, ok := pair[1].(string); ok {
					sessionID = id
					break
				}
			}
		}
	}

	c.mu.Lock()
	c.nonce1 = nonce1
	c.nonce2Sz = sz
	if sessionID != "" {
		c.sessionID = sessionID
	}
	c.mu.Unlock()
	c.nonce2.Store(0)
}

// Submit sends mining.submit and returns whether the pool accepted
// the share.
func (c *Client) Submit(worker, jobID, extranonce2Hex, ntimeHex, nonceHex string) (bool, error) {
	id := c.nextRequestID()
	resp, err := c.call(id, NewSubmitRequest(id, worker, jobID, extranonce2Hex, ntimeHex, nonceHex))
	if err != nil {
		return false, err
	}
	accepted, _ := resp.Result.(bool)
	return accepted, nil
}

// Nonce2Hex formats v as a fixed-width hex string matching the
// subscribed extranonce2 size.
func (c *Client) Nonce2Hex(v uint64) string {
	sz := c.Nonce2Size()
	if sz <= 0 {
		sz = 4
	}
	b := make([]byte, sz)
	for i := 0; i < sz; i++ {
		b[sz-1-i] = byte(v >> (8 * uint(i)))
	}
	return hex.EncodeToString(b)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// readLoop decodes newline-delimited JSON messages, routing responses
// to the caller awaiting them by id and notifications to the
// configured handlers.
func (c *Client) readLoop(conn net.Conn, errCh chan<- error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.dispatch(append([]byte(nil), line...))
	}

	if err := scanner.Err(); err != nil {
		errCh <- err
		return
	}
	errCh <- fmt.Errorf("connection closed by peer")
}

func (c *Client) dispatch(line []byte) {
	if c.keepaliveMgr != nil {
		c.keepaliveMgr.RecordActivity(c.cfg.Addr)
	}

	n, err := ParseLine(line)
	if err != nil {
		log.Printf("[stratum] %s: malformed line: %v", c.cfg.Addr, err)
		return
	}

	if n.Method == "" {
		// It's a response to one of our requests.
		var id int
		switch v := n.ID.(type) {
		case float64:
			id = int(v)
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		c.pendingMu.Unlock()
		if ok {
			resp, err := ParseResponse(line)
			if err != nil {
				log.Printf("[stratum] %s: malformed response: %v", c.cfg.Addr, err)
				return
			}
			ch <- resp
		}
		return
	}

	switch n.Method {
	case "mining.notify":
		c.handleNotify(n.Params)
	case "mining.set_difficulty":
		c.handleSetDifficulty(n.Params)
	case "client.reconnect":
		c.handleReconnect(n.Params)
	case "client.show_message":
		if c.cfg.OnMessage != nil && len(n.Params) > 0 {
			if s, ok := n.Params[0].(string); ok {
				c.cfg.OnMessage(s)
			}
		}
	default:
		log.Printf("[stratum] %s: unhandled method %s", c.cfg.Addr, n.Method)
	}
}

func (c *Client) handleNotify(params []interface{}) {
	if len(params) < 9 {
		return
	}
	job := Job{}
	job.JobID, _ = params[0].(string)
	job.PrevHash, _ = params[1].(string)
	if s, ok := params[2].(string); ok {
		job.Coinbase1, _ = hexOrNil(s)
	}
	if s, ok := params[3].(string); ok {
		job.Coinbase2, _ = hexOrNil(s)
	}
	if branch, ok := params[4].([]interface{}); ok {
		for _, m := range branch {
			if s, ok := m.(string); ok {
				if b, err := hexOrNil(s); err == nil {
					job.MerkleBranch = append(job.MerkleBranch, b)
				}
			}
		}
	}
	job.Version, _ = params[5].(string)
	job.NBits, _ = params[6].(string)
	job.NTime, _ = params[7].(string)
	job.CleanJobs, _ = params[8].(bool)

	if c.cfg.OnNotify != nil {
		c.cfg.OnNotify(job, job.CleanJobs)
	}
}

func (c *Client) handleSetDifficulty(params []interface{}) {
	if len(params) < 1 {
		return
	}
	d, ok := params[0].(float64)
	if !ok {
		return
	}
	c.mu.Lock()
	c.diff = d
	c.mu.Unlock()
	if c.cfg.OnDifficulty != nil {
		c.cfg.OnDifficulty(d)
	}
}

func (c *Client) handleReconnect(params []interface{}) {
	newAddr := c.cfg.Addr
	if len(params) >= 2 {
		host, hok := params[0].(string)
		port, pok := params[1].(float64)
		if hok && pok && host != "" {
			newAddr = fmt.Sprintf("%s:%d", host, int(port))
		}
	}
	log.Printf("[stratum] %s: client.reconnect to %s", c.cfg.Addr, newAddr)
	c.mu.Lock()
	c.cfg.Addr = newAddr
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func hexOrNil(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
