package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"

	"github.com/chimera-pool/mining-coordinator/internal/cache"
	"github.com/chimera-pool/mining-coordinator/internal/config"
	"github.com/chimera-pool/mining-coordinator/internal/device"
	"github.com/chimera-pool/mining-coordinator/internal/minerloop"
	"github.com/chimera-pool/mining-coordinator/internal/pool"
	"github.com/chimera-pool/mining-coordinator/internal/simdriver"
	"github.com/chimera-pool/mining-coordinator/internal/staging"
	"github.com/chimera-pool/mining-coordinator/internal/statslog"
	"github.com/chimera-pool/mining-coordinator/internal/statusapi"
	"github.com/chimera-pool/mining-coordinator/internal/stratum"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/keepalive"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/vardiff"
	"github.com/chimera-pool/mining-coordinator/internal/submit"
	"github.com/chimera-pool/mining-coordinator/internal/tsqueue"
	"github.com/chimera-pool/mining-coordinator/internal/watchdog"
	"github.com/chimera-pool/mining-coordinator/internal/work"
	"github.com/chimera-pool/mining-coordinator/internal/workgen"
)

func main() {
	log.Println("starting mining coordinator")

	configPath := flag.String("config", config.GetEnv("COORDINATOR_CONFIG", "coordinator.yaml"), "path to coordinator YAML config")
	flag.Parse()

	cfg, err := config.LoadCoordinatorConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	co := newCoordinator(cfg)
	co.start(ctx)

	status := statusapi.New(cfg.StatusAddr, co)
	go func() {
		if err := status.ListenAndServe(); err != nil {
			log.Printf("status server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down coordinator")
	cancel()
	co.wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := status.Shutdown(shutdownCtx); err != nil {
		log.Printf("status server shutdown error: %v", err)
	}
	log.Println("coordinator exited cleanly")
}

// coordinator owns every long-lived subsystem: the pool manager, one
// stratum client + submit worker per pool, the staging buffer, the
// device registry and its minerloops, and the watchdog. This is the
// wiring layer; each subsystem's own package owns its semantics.
type coordinator struct {
	cfg *config.CoordinatorConfig

	manager *pool.Manager
	staging *staging.Staging

	clients   map[int]*stratum.Client
	generator *workgen.Generator

	devices  []*device.Device
	deviceQs map[string]*staging.DeviceQueue

	dedupBacking submit.Backing

	wd *watchdog.Watchdog

	startedAt time.Time

	wg sync.WaitGroup
}

func newCoordinator(cfg *config.CoordinatorConfig) *coordinator {
	co := &coordinator{
		cfg:       cfg,
		staging:   staging.New(),
		clients:   make(map[int]*stratum.Client),
		deviceQs:  make(map[string]*staging.DeviceQueue),
		generator: workgen.New(),
		startedAt: time.Now(),
	}

	co.manager = pool.NewManager(parseStrategy(cfg.Strategy), co)

	for _, pc := range cfg.Pools {
		p := pool.New(0, pool.ProtocolStratum, pc.URL, pool.Credentials{User: pc.User, Pass: pc.Pass})
		p.Priority = pc.Priority
		p.Quota = pc.Quota
		p.LPURL = pc.LPURL
		p.StratumHost = stratumHost(pc.URL)
		co.manager.AddPool(p)
	}

	for _, dp := range cfg.Devices {
		for i := 0; i < dp.Count; i++ {
			d := device.New(dp.DriverID, i, dp.HashrateWindow, vardiff.DefaultConfig())
			co.devices = append(co.devices, d)
			co.deviceQs[d.ID] = staging.NewDeviceQueue()
		}
	}

	co.wd = watchdog.New(watchdog.DefaultConfig(), co.devices, nil)

	if cfg.RedisURL != "" {
		cacheCfg := cache.DefaultCacheConfig()
		cacheCfg.RedisAddr = cfg.RedisURL
		cacheCfg.KeyPrefix = "coordinator:"
		redisCache, err := cache.NewRedisCache(cacheCfg)
		if err != nil {
			log.Printf("redis dedup backing unavailable, falling back to process-local dedup: %v", err)
		} else {
			co.dedupBacking = redisCache
		}
	}

	return co
}

// stratumHost strips the stratum+tcp:// scheme pool configs use,
// leaving the bare host:port a net.Dial-based client.Config.Addr
// expects.
func stratumHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(rawURL, "stratum+tcp://")
	}
	return u.Host
}

func parseStrategy(s string) pool.Strategy {
	switch s {
	case "round_robin":
		return pool.RoundRobin
	case "rotate":
		return pool.Rotate
	case "load_balance":
		return pool.LoadBalance
	case "balance":
		return pool.Balance
	default:
		return pool.Failover
	}
}

// DrainUnqueuedForPool, DrainUnqueuedExcept and SignalAllWorkRestart
// implement pool.Invalidator so the manager can invalidate stale work
// on a pool switch without importing the device/staging packages.
func (co *coordinator) DrainUnqueuedForPool(poolID int) {
	for _, dq := range co.deviceQs {
		dq.DrainUnqueuedForPool(poolID)
	}
}

// DrainUnqueuedExcept drains every pool's unqueued work other than
// poolID — used on SwitchPools, where the newly selected pool's fresh
// work must survive while every other pool's stale work is discarded
// (spec §4.3 switch policy).
func (co *coordinator) DrainUnqueuedExcept(poolID int) {
	for _, dq := range co.deviceQs {
		dq.DrainUnqueuedExcept(poolID)
	}
}

func (co *coordinator) SignalAllWorkRestart() {
	log.Println("pool switch: signalling work restart to all devices")
	for _, d := range co.devices {
		d.SignalWorkRestart()
	}
}

func (co *coordinator) start(ctx context.Context) {
	for _, p := range co.manager.Pools() {
		co.startPoolClient(ctx, p)
	}

	for _, d := range co.devices {
		co.startDevice(ctx, d)
	}

	co.wg.Add(1)
	go func() {
		defer co.wg.Done()
		co.wd.Run(ctx)
	}()

	if co.cfg.DatabaseURL != "" {
		co.startStatslog(ctx)
	}
}

func (co *coordinator) startPoolClient(ctx context.Context, p *pool.Pool) {
	kcfg := keepalive.DefaultConfig()
	client := stratum.New(stratum.Config{
		Addr:      p.StratumHost,
		UserAgent: "mining-coordinator/1.0",
		User:      p.Credentials.User,
		Pass:      p.Credentials.Pass,
		Keepalive: &kcfg,
		OnNotify: func(job stratum.Job, clean bool) {
			co.onNotify(p, co.clients[p.ID], job, clean)
		},
	})
	co.clients[p.ID] = client

	worker := &submit.Worker{
		Pool:   p,
		Client: client,
		Dedup:  submit.NewDedupCache(co.dedupBacking, 10*time.Minute),
		Expiry: 2 * time.Minute,
	}

	co.wg.Add(2)
	go func() {
		defer co.wg.Done()
		client.Run(ctx)
	}()
	go func() {
		defer co.wg.Done()
		worker.Run(ctx)
	}()
}

func (co *coordinator) onNotify(p *pool.Pool, c *stratum.Client, job stratum.Job, clean bool) {
	nonce2, _ := c.NextNonce2()
	w, err := co.generator.FromStratumJob(p.ID, job, c.Nonce1(), nonce2, c.Nonce2Size(), c.Difficulty())
	if err != nil {
		log.Printf("pool %d: build work from job %s: %v", p.ID, job.JobID, err)
		return
	}
	if clean {
		co.DrainUnqueuedForPool(p.ID)
	}
	if _, err := co.staging.Stage(w); err != nil {
		log.Printf("pool %d: stage work: %v", p.ID, err)
	}
}

func (co *coordinator) startDevice(ctx context.Context, d *device.Device) {
	dq := co.deviceQs[d.ID]
	drv := simdriver.New(d.DriverID, 1<<18, 1.0)

	thr := device.NewThread(0, d.ID)
	d.Threads = append(d.Threads, thr)

	co.wg.Add(2)
	go func() {
		defer co.wg.Done()
		co.feedDeviceQueue(ctx, dq)
	}()
	go func() {
		defer co.wg.Done()
		minerloop.RunLegacy(ctx, drv, dq, co, d, thr)
	}()
}

// feedDeviceQueue moves staged work into one device's unqueued set,
// mirroring cgminer's per-device work distribution off a shared
// staging buffer.
func (co *coordinator) feedDeviceQueue(ctx context.Context, dq *staging.DeviceQueue) {
	for {
		w, res := co.staging.Take(ctx)
		if res != tsqueue.PopOK {
			return
		}
		dq.PushUnqueued(w)
	}
}

// Submit implements minerloop.ResultSink: classify a found nonce
// (spec §4.8 submit_nonce) and enqueue it for the owning pool's submit
// worker only when it clears the share target.
func (co *coordinator) Submit(w *work.Work, nonce uint32) work.NonceDiffClass {
	for _, p := range co.manager.Pools() {
		if p.ID == w.PoolID {
			minDiff := 1.0
			if c, ok := co.clients[p.ID]; ok {
				minDiff = c.Difficulty()
			}
			return submit.SubmitNonce(p, w, nonce, minDiff)
		}
	}
	w.Free()
	return work.Bad
}

func (co *coordinator) startStatslog(ctx context.Context) {
	db, err := sql.Open("postgres", co.cfg.DatabaseURL)
	if err != nil {
		log.Printf("statslog: open db: %v", err)
		return
	}
	if err := statslog.Migrate(db, "file://internal/statslog/migrations"); err != nil {
		log.Printf("statslog: migrate: %v", err)
	}

	repo := statslog.NewRepository(sqlx.NewDb(db, "postgres"))
	logger := statslog.NewLogger(repo, co.cfg.StatsLogInterval)
	for _, p := range co.manager.Pools() {
		logger.RegisterPool(poolSource{p})
	}
	for _, d := range co.devices {
		logger.RegisterDevice(deviceSource{d})
	}

	co.wg.Add(1)
	go func() {
		defer co.wg.Done()
		logger.Run(ctx)
	}()
}

// statusapi.Source implementation.

func (co *coordinator) Pools() []statusapi.PoolStatus {
	var out []statusapi.PoolStatus
	for _, p := range co.manager.Pools() {
		out = append(out, statusapi.PoolStatus{
			ID: p.ID, URL: p.RPCURL, State: poolStateLabel(p),
			Accepted: p.Stats.Accepted, Rejected: p.Stats.Rejected, Stale: p.Stats.Stale,
		})
	}
	return out
}

func (co *coordinator) Devices() []statusapi.DeviceStatus {
	var out []statusapi.DeviceStatus
	for _, d := range co.devices {
		out = append(out, statusapi.DeviceStatus{
			ID: d.ID, Liveness: livenessLabel(d.Liveness),
			HashrateHS: d.Hashrate.GetHashrate(), Temperature: d.Temperature,
		})
	}
	return out
}

func (co *coordinator) StartedAt() time.Time { return co.startedAt }

func poolStateLabel(p *pool.Pool) string {
	switch {
	case p.Enable == pool.Disabled:
		return "disabled"
	case p.Enable == pool.Rejecting:
		return "rejecting"
	case p.Idle:
		return "idle"
	default:
		return "active"
	}
}

func livenessLabel(l device.Liveness) string {
	switch l {
	case device.LifeOK:
		return "OK"
	case device.LifeWait:
		return "WAIT"
	case device.LifeSick:
		return "SICK"
	case device.LifeDead, device.LifeDead2:
		return "DEAD"
	default:
		return "INIT"
	}
}

// poolSource/deviceSource adapt pool.Pool/device.Device to
// statslog's narrow Source interfaces without those packages
// depending on statslog.
type poolSource struct{ p *pool.Pool }

func (s poolSource) PoolID() int { return s.p.ID }
func (s poolSource) Snapshot() (accepted, rejected, stale int64, diff1Shares float64, foundBlocks int64) {
	return s.p.Stats.Accepted, s.p.Stats.Rejected, s.p.Stats.Stale, s.p.Stats.Diff1Shares, s.p.Stats.FoundBlocks
}

type deviceSource struct{ d *device.Device }

func (s deviceSource) DeviceID() string { return s.d.ID }
func (s deviceSource) Snapshot() (hashrateHS, temperature float64, liveness int) {
	return s.d.Hashrate.GetHashrate(), s.d.Temperature, int(s.d.Liveness)
}
