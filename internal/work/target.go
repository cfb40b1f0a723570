package work

import "math/big"

// diff1TargetHex is the difficulty-1 target shared by every
// diff-to-target conversion in the coordinator.
const diff1TargetHex = "00000000ffff0000000000000000000000000000000000000000000000000000"

// DiffToTarget converts a share or pool difficulty (as carried by
// mining.set_difficulty) into the 32-byte target submit_nonce and
// _test_nonce2 compare a hash against (spec §4.5/§4.8).
func DiffToTarget(diff float64) [32]byte {
	maxTarget, _ := new(big.Int).SetString(diff1TargetHex, 16)
	if diff <= 0 {
		diff = 1
	}
	scaled := new(big.Float).Quo(new(big.Float).SetInt(maxTarget), big.NewFloat(diff))
	result, _ := scaled.Int(nil)
	return bigToLE32(result)
}

// NBitsToTarget decodes the compact "nbits" difficulty encoding
// (the same 4 bytes written into the header's nbits field) into the
// actual network target, the threshold a GOOD hash is compared
// against to detect a block solution (spec §4.8 "block-beating hash").
func NBitsToTarget(nbits []byte) [32]byte {
	if len(nbits) != 4 {
		return [32]byte{}
	}
	exponent := int(nbits[0])
	mantissa := new(big.Int).SetBytes(nbits[1:4])

	var value *big.Int
	switch {
	case exponent <= 3:
		value = new(big.Int).Rsh(mantissa, uint(8*(3-exponent)))
	default:
		value = new(big.Int).Lsh(mantissa, uint(8*(exponent-3)))
	}
	return bigToLE32(value)
}

// bigToLE32 writes v into a 32-byte array using the little-endian
// target/hash storage convention meetsTarget compares with (byte 0 is
// the number's least significant byte).
func bigToLE32(v *big.Int) [32]byte {
	be := v.Bytes()
	if len(be) > 32 {
		be = be[len(be)-32:]
	}
	var be32 [32]byte
	copy(be32[32-len(be):], be)

	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = be32[31-i]
	}
	return out
}
