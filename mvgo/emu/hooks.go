package emu

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hook file descriptors. Descriptors below FdFirstHook are owned by the
// executor itself (stdin/stdout/stderr, public values, hint channel).
const (
	FdEcrecoverHook uint32 = 5
	FdEdDecompress  uint32 = 6

	FdFirstHook uint32 = 5
)

// HookEnv is the host-side view a hook gets. Hooks must be pure with respect
// to guest state: their only output channel is the returned byte vectors,
// which the executor appends to the input stream.
type HookEnv struct {
	Executor *Executor
}

// HookFn turns a guest request into response buffers for later READ calls.
type HookFn func(env HookEnv, data []byte) [][]byte

// HookRegistry maps virtual file descriptors to hooks.
type HookRegistry struct {
	hooks map[uint32]HookFn
}

// DefaultHooks ships the hooks guests expect: secp256k1 public key recovery
// and Ed25519 point decompression.
func DefaultHooks() *HookRegistry {
	return &HookRegistry{hooks: map[uint32]HookFn{
		FdEcrecoverHook: hookEcrecover,
		FdEdDecompress:  hookEdDecompress,
	}}
}

// Register installs a hook. Descriptors below FdFirstHook are reserved.
func (r *HookRegistry) Register(fd uint32, hook HookFn) error {
	if fd < FdFirstHook {
		return fmt.Errorf("hook fd %d is reserved", fd)
	}
	r.hooks[fd] = hook
	return nil
}

func (r *HookRegistry) Get(fd uint32) (HookFn, bool) {
	hook, ok := r.hooks[fd]
	return hook, ok
}

// hookEcrecover recovers the uncompressed secp256k1 public key from a 65-byte
// recoverable signature followed by the 32-byte message hash. Errors surface
// to the guest as an empty response; the guest is expected to re-derive and
// check the result in constrained code.
func hookEcrecover(_ HookEnv, data []byte) [][]byte {
	if len(data) != 65+32 {
		return [][]byte{{}}
	}
	sig, msgHash := data[:65], data[65:]
	pubkey, err := crypto.Ecrecover(msgHash, sig)
	if err != nil {
		return [][]byte{{}}
	}
	return [][]byte{pubkey}
}

// hookEdDecompress expands a 32-byte compressed Edwards point to its 64-byte
// extended affine form.
func hookEdDecompress(_ HookEnv, data []byte) [][]byte {
	if len(data) != 32 {
		return [][]byte{{}}
	}
	point, err := new(edwards25519.Point).SetBytes(data)
	if err != nil {
		return [][]byte{{}}
	}
	// SetBytes decodes to Z=1, so X and Y are already affine
	x, y, _, _ := point.ExtendedCoordinates()
	out := make([]byte, 64)
	copy(out[:32], x.Bytes())
	copy(out[32:], y.Bytes())
	return [][]byte{out}
}
