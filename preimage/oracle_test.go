package preimage

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// stubHost answers preimage requests from a map, speaking the wire
// protocol: 32-byte key in, 8-byte big-endian length plus data out.
type stubHost struct {
	preimages map[Key][]byte
	response  bytes.Buffer
	requests  int
}

func (h *stubHost) Write(p []byte) (int, error) {
	if len(p) != 32 {
		return 0, io.ErrShortWrite
	}
	var key Key
	copy(key[:], p)
	data := h.preimages[key]
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	h.response.Write(lenBuf[:])
	h.response.Write(data)
	h.requests++
	return len(p), nil
}

func (h *stubHost) Read(p []byte) (int, error) {
	return h.response.Read(p)
}

func TestOracleClientGet(t *testing.T) {
	data := []byte("some preimage data")
	key := Keccak256Key(crypto.Keccak256Hash(data))
	host := &stubHost{preimages: map[Key][]byte{key: data}}
	client := NewOracleClient(host)

	got, err := client.Get(key)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestOracleClientKeyMismatch(t *testing.T) {
	data := []byte("some preimage data")
	key := Keccak256Key(crypto.Keccak256Hash(data))
	host := &stubHost{preimages: map[Key][]byte{key: []byte("tampered")}}
	client := NewOracleClient(host)

	_, err := client.Get(key)
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestOracleClientGetExact(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	key := Keccak256Key(crypto.Keccak256Hash(data))
	host := &stubHost{preimages: map[Key][]byte{key: data}}
	client := NewOracleClient(host)

	buf := make([]byte, 4)
	require.NoError(t, client.GetExact(key, buf))
	require.Equal(t, data, buf)

	short := make([]byte, 3)
	require.ErrorIs(t, client.GetExact(key, short), ErrWrongSize)
}

func TestCachingOracleServesFromCache(t *testing.T) {
	data := []byte("cached data")
	key := Keccak256Key(crypto.Keccak256Hash(data))
	host := &stubHost{preimages: map[Key][]byte{key: data}}
	oracle, err := NewCachingOracle(NewOracleClient(host), nil)
	require.NoError(t, err)

	first, err := oracle.Get(key)
	require.NoError(t, err)
	second, err := oracle.Get(key)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, host.requests)
}

func TestCachingOracleReturnsCopies(t *testing.T) {
	data := []byte("cached data")
	key := Keccak256Key(crypto.Keccak256Hash(data))
	host := &stubHost{preimages: map[Key][]byte{key: data}}
	oracle, err := NewCachingOracle(NewOracleClient(host), nil)
	require.NoError(t, err)

	first, _ := oracle.Get(key)
	first[0] = 'X'
	second, err := oracle.Get(key)
	require.NoError(t, err)
	require.Equal(t, data, second)
}

func TestCachingOraclePrebuiltSeed(t *testing.T) {
	data := []byte("prebuilt entry")
	key := Keccak256Key(crypto.Keccak256Hash(data))
	// No host behind the oracle: every read must come from the seed.
	oracle, err := NewCachingOracle(nil, map[Key][]byte{key: data})
	require.NoError(t, err)

	got, err := oracle.Get(key)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCachingOracleRejectsBadSeed(t *testing.T) {
	key := Keccak256Key(crypto.Keccak256Hash([]byte("a")))
	_, err := NewCachingOracle(nil, map[Key][]byte{key: []byte("b")})
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestKeyEncodingRoundTrip(t *testing.T) {
	keys := []Key{
		LocalKey(7),
		Keccak256Key(crypto.Keccak256Hash([]byte("x"))),
		Sha256Key(crypto.Keccak256Hash([]byte("y"))),
		BlobKey(crypto.Keccak256Hash([]byte("z"))),
		PrecompileKey(crypto.Keccak256Hash([]byte("w"))),
	}
	for _, k := range keys {
		decoded, err := KeyFromBytes(k.Bytes())
		require.NoError(t, err)
		require.Equal(t, k, decoded)
	}
	_, err := KeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestLocalKeyLayout(t *testing.T) {
	k := LocalKey(0x0102030405060708)
	require.Equal(t, byte(LocalKeyType), k[0])
	// Little-endian u64 prefix in the 31-byte slot id.
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, k[1:9])
}

func TestLocalKeysSkipVerification(t *testing.T) {
	k := LocalKey(1)
	require.NoError(t, k.Verify([]byte("anything")))
}
