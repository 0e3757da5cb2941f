package emu

import (
	"testing"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestHookRegistry(t *testing.T) {
	r := DefaultHooks()
	_, ok := r.Get(FdEcrecoverHook)
	require.True(t, ok)
	_, ok = r.Get(99)
	require.False(t, ok)

	require.Error(t, r.Register(4, func(HookEnv, []byte) [][]byte { return nil }),
		"descriptors below the hook range are reserved")
	require.NoError(t, r.Register(99, func(HookEnv, []byte) [][]byte { return nil }))
	_, ok = r.Get(99)
	require.True(t, ok)
}

func TestHookEcrecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msgHash := crypto.Keccak256([]byte("a message"))
	sig, err := crypto.Sign(msgHash, key)
	require.NoError(t, err)

	out := hookEcrecover(HookEnv{}, append(sig, msgHash...))
	require.Len(t, out, 1)
	require.Equal(t, crypto.FromECDSAPub(&key.PublicKey), out[0])
}

func TestHookEcrecoverBadInput(t *testing.T) {
	out := hookEcrecover(HookEnv{}, []byte{1, 2, 3})
	require.Equal(t, [][]byte{{}}, out)

	// right length, garbage signature
	out = hookEcrecover(HookEnv{}, make([]byte, 97))
	require.Equal(t, [][]byte{{}}, out)
}

func TestHookEdDecompress(t *testing.T) {
	g := edwards25519.NewGeneratorPoint()
	out := hookEdDecompress(HookEnv{}, g.Bytes())
	require.Len(t, out, 1)
	require.Len(t, out[0], 64)

	x, y, _, _ := g.ExtendedCoordinates()
	require.Equal(t, x.Bytes(), out[0][:32])
	require.Equal(t, y.Bytes(), out[0][32:])
}

func TestHookEdDecompressBadInput(t *testing.T) {
	require.Equal(t, [][]byte{{}}, hookEdDecompress(HookEnv{}, []byte{1}))
}

func TestEcrecoverHookThroughWriteSyscall(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msgHash := crypto.Keccak256([]byte("signed payload"))
	sig, err := crypto.Sign(msgHash, key)
	require.NoError(t, err)
	payload := append(sig, msgHash...)

	p := syscallProgram(SyscallWrite, FdEcrecoverHook, 0x2000)
	p.Image[6] = uint32(len(payload))
	for i, w := range bytesToWordsLE(payload) {
		p.Image[0x2000+uint32(i)*4] = w
	}
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())

	require.Len(t, e.State.InputStream, 1)
	require.Equal(t, crypto.FromECDSAPub(&key.PublicKey), e.State.InputStream[0])
}
