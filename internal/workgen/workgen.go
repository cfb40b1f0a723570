// Package workgen builds Work objects from a stratum mining.notify job
// (spec §4.5); it has no getwork or GBT reply decoding. It also
// implements ntime rolling within drv_rolllimit.
package workgen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/chimera-pool/mining-coordinator/internal/stratum"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/merkle"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// Generator turns pool-protocol replies into staged Work.
type Generator struct {
	merkle *merkle.Builder
}

// New creates a Generator.
func New() *Generator {
	return &Generator{merkle: merkle.NewBuilder()}
}

// FromStratumJob builds a Work from a mining.notify job plus the
// pool's current extranonce1/size and the device's allocated
// extranonce2, computing the coinbase hash and 80-byte header (spec
// §4.5 GenStratumWork2). diff is the pool's current share difficulty
// (the value most recently pushed by mining.set_difficulty); it sets
// both w.Target and w.NonceDiff, so callers must pass the difficulty
// in effect at notify time, not a stale one.
func (g *Generator) FromStratumJob(poolID int, job stratum.Job, nonce1Hex string, nonce2 uint64, nonce2Size int, diff float64) (*work.Work, error) {
	nonce1, err := hex.DecodeString(nonce1Hex)
	if err != nil {
		return nil, fmt.Errorf("decode nonce1: %w", err)
	}
	nonce2Bytes := make([]byte, nonce2Size)
	for i := 0; i < nonce2Size; i++ {
		nonce2Bytes[nonce2Size-1-i] = byte(nonce2 >> (8 * uint(i)))
	}

	coinbase := append(append(append([]byte{}, job.Coinbase1...), nonce1...), nonce2Bytes...)
	coinbase = append(coinbase, job.Coinbase2...)
	coinbaseHash := doubleSha256(coinbase)

	merkleRoot := g.merkle.ComputeRoot(coinbaseHash, job.MerkleBranch)

	header, nbits, err := buildHeader(job, merkleRoot)
	if err != nil {
		return nil, err
	}

	w := work.New(poolID)
	w.Stratum = true
	w.JobID = job.JobID
	w.Nonce1 = nonce1Hex
	w.Nonce2 = nonce2
	copy(w.Data[:80], header)
	w.Midstate = sha256.Sum256(header[:64])
	w.Target = work.DiffToTarget(diff)
	w.BlockTarget = work.NBitsToTarget(nbits)
	w.NonceDiff = diff
	w.BaseNtime = w.Ntime()
	w.DrvRollLimit = 0 // stratum rolling happens via ntime re-push, not drv_rolllimit
	return w, nil
}

// buildHeader assembles the 80-byte block header: version, prevhash
// (byte-reversed per 4-byte word, per the getwork header convention),
// merkle root, ntime, nbits, and a zeroed nonce field at offset 76. It
// also returns the decoded nbits bytes so the caller can derive the
// block target without re-parsing the job.
func buildHeader(job stratum.Job, merkleRoot []byte) (header []byte, nbits []byte, err error) {
	version, err := hexToBE4(job.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("version: %w", err)
	}
	prevHash, err := hex.DecodeString(job.PrevHash)
	if err != nil {
		return nil, nil, fmt.Errorf("prevhash: %w", err)
	}
	ntime, err := hexToBE4(job.NTime)
	if err != nil {
		return nil, nil, fmt.Errorf("ntime: %w", err)
	}
	nbits, err = hexToBE4(job.NBits)
	if err != nil {
		return nil, nil, fmt.Errorf("nbits: %w", err)
	}

	header = make([]byte, 80)
	copy(header[0:4], version)
	copyReversedWords(header[4:36], prevHash)
	copyReversedWords(header[36:68], merkleRoot)
	copy(header[68:72], ntime)
	copy(header[72:76], nbits)
	// header[76:80] nonce left zero; driver fills it in.
	return header, nbits, nil
}

// copyReversedWords copies src into dst reversing byte order within
// each 4-byte word, matching the header field convention the mining
// protocol uses for hash fields.
func copyReversedWords(dst, src []byte) {
	for i := 0; i+4 <= len(src) && i+4 <= len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+3], src[i+2], src[i+1], src[i]
	}
}

func hexToBE4(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 4 {
		return nil, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	return b, nil
}

// RollWork produces an ntime-rolled clone of w, advancing ntime by
// deltaSeconds and resetting the nonce field, honoring
// w.DrvRollLimit: once w.Rolls reaches the limit the original must be
// re-staged fresh instead (spec §4.2/§9 rolling bound, property P5).
func RollWork(w *work.Work, deltaSeconds uint32) (*work.Work, bool) {
	if w.DrvRollLimit > 0 && w.Rolls >= w.DrvRollLimit {
		return nil, false
	}
	clone := w.Clone()
	clone.SetNtime(clone.Ntime() + deltaSeconds)
	clone.Rolls = w.Rolls + 1
	binary.BigEndian.PutUint32(clone.Data[76:80], 0)
	return clone, true
}

func doubleSha256(data []byte) []byte {
	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	return h2[:]
}
