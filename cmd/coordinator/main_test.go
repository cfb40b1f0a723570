package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chimera-pool/mining-coordinator/internal/device"
	"github.com/chimera-pool/mining-coordinator/internal/pool"
)

func TestStratumHostStripsScheme(t *testing.T) {
	assert.Equal(t, "pool.example.com:3333", stratumHost("stratum+tcp://pool.example.com:3333"))
	assert.Equal(t, "pool.example.com:3333", stratumHost("pool.example.com:3333"))
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, pool.RoundRobin, parseStrategy("round_robin"))
	assert.Equal(t, pool.LoadBalance, parseStrategy("load_balance"))
	assert.Equal(t, pool.Balance, parseStrategy("balance"))
	assert.Equal(t, pool.Rotate, parseStrategy("rotate"))
	assert.Equal(t, pool.Failover, parseStrategy("anything_else"))
}

func TestPoolStateLabel(t *testing.T) {
	p := pool.New(0, pool.ProtocolStratum, "stratum+tcp://x:3333", pool.Credentials{})
	assert.Equal(t, "active", poolStateLabel(p))

	p.Idle = true
	assert.Equal(t, "idle", poolStateLabel(p))

	p.Idle = false
	p.Enable = pool.Rejecting
	assert.Equal(t, "rejecting", poolStateLabel(p))

	p.Enable = pool.Disabled
	assert.Equal(t, "disabled", poolStateLabel(p))
}

func TestLivenessLabel(t *testing.T) {
	assert.Equal(t, "OK", livenessLabel(device.LifeOK))
	assert.Equal(t, "SICK", livenessLabel(device.LifeSick))
	assert.Equal(t, "DEAD", livenessLabel(device.LifeDead))
	assert.Equal(t, "DEAD", livenessLabel(device.LifeDead2))
	assert.Equal(t, "INIT", livenessLabel(device.LifeInit))
}
