package signature

import (
	"encoding/base64"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureCompare(t *testing.T) {
	t.Run("success - identical hmacs match", func(t *testing.T) {
		for _, data := range []string{"a", "payload", `{"id":"evt_1"}`, strings.Repeat("x", 4096)} {
			a := GenerateHMAC([]byte("s3cr3t"), []byte(data), Hex)
			b := GenerateHMAC([]byte("s3cr3t"), []byte(data), Hex)
			assert.True(t, SecureCompare(a, b), data)
		}
	})

	t.Run("failure - single differing byte anywhere", func(t *testing.T) {
		sig := GenerateHMAC([]byte("s3cr3t"), []byte("payload"), Hex)
		for i := 0; i < len(sig); i++ {
			altered := []byte(sig)
			if altered[i] == 'a' {
				altered[i] = 'b'
			} else {
				altered[i] = 'a'
			}
			assert.False(t, SecureCompare(sig, string(altered)), "position %d", i)
		}
	})

	t.Run("failure - length mismatch", func(t *testing.T) {
		assert.False(t, SecureCompare("abc", "abcd"))
	})

	t.Run("failure - empty inputs", func(t *testing.T) {
		assert.False(t, SecureCompare("", ""))
		assert.False(t, SecureCompare("abc", ""))
		assert.False(t, SecureCompare("", "abc"))
	})
}

func TestGenerateHMAC(t *testing.T) {
	t.Run("hex is lowercase sha256 length", func(t *testing.T) {
		sig := GenerateHMAC([]byte("key"), []byte("The quick brown fox jumps over the lazy dog"), Hex)
		assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)
		assert.Equal(t, strings.ToLower(sig), sig)
	})

	t.Run("base64 decodes to 32 bytes", func(t *testing.T) {
		sig := GenerateHMAC([]byte("key"), []byte("data"), Base64)
		raw, err := base64.StdEncoding.DecodeString(sig)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
	})

	t.Run("different secrets differ", func(t *testing.T) {
		a := GenerateHMAC([]byte("one"), []byte("data"), Hex)
		b := GenerateHMAC([]byte("two"), []byte("data"), Hex)
		assert.NotEqual(t, a, b)
	})
}

func TestNewEncoding(t *testing.T) {
	assert.Equal(t, Base64, NewEncoding("base64"))
	assert.Equal(t, Base64, NewEncoding(" BASE64 "))
	assert.Equal(t, Hex, NewEncoding("hex"))
	assert.Equal(t, Hex, NewEncoding(""))
	assert.Equal(t, "base64", Base64.String())
}

func TestParseKeyValueHeader(t *testing.T) {
	t.Run("scalar and repeated keys", func(t *testing.T) {
		kv := ParseKeyValueHeader("t=1700000000,v1=abc,v0=old,v1=def")

		assert.Equal(t, "1700000000", kv.Get("t"))
		assert.False(t, kv.IsList("t"))
		assert.Equal(t, []string{"abc", "def"}, kv.All("v1"))
		assert.True(t, kv.IsList("v1"))
		assert.Equal(t, "old", kv.Get("v0"))
	})

	t.Run("tolerates whitespace and junk segments", func(t *testing.T) {
		kv := ParseKeyValueHeader(" t = 1 , garbage, =novalue, v1=x=y ")

		assert.Equal(t, "1", kv.Get("t"))
		assert.Equal(t, "x=y", kv.Get("v1"))
		assert.Len(t, kv, 2)
	})

	t.Run("empty header", func(t *testing.T) {
		kv := ParseKeyValueHeader("")
		assert.Empty(t, kv)
		assert.Equal(t, "", kv.Get("t"))
	})
}

func TestTimestampWithinTolerance(t *testing.T) {
	now := time.Now().Unix()

	assert.False(t, TimestampWithinTolerance(now-400, 300, now))
	assert.True(t, TimestampWithinTolerance(now-100, 300, now))
	assert.False(t, TimestampWithinTolerance(now+400, 300, now))
	assert.True(t, TimestampWithinTolerance(now+100, 300, now))
	assert.True(t, TimestampWithinTolerance(now-300, 300, now))
	assert.True(t, TimestampWithinTolerance(now, 0, now))
	assert.False(t, TimestampWithinTolerance(now, -1, now))

	t.Run("extreme timestamps do not wrap around", func(t *testing.T) {
		fixed := int64(1_700_000_000)
		assert.False(t, TimestampWithinTolerance(math.MinInt64+fixed, 300, fixed))
		assert.False(t, TimestampWithinTolerance(math.MinInt64, 300, fixed))
		assert.False(t, TimestampWithinTolerance(math.MaxInt64, 300, fixed))
		assert.False(t, TimestampWithinTolerance(math.MinInt64, math.MaxInt64, math.MaxInt64))
		assert.True(t, TimestampWithinTolerance(math.MaxInt64, 300, math.MaxInt64-300))
	})

	t.Run("huge negative timestamp parses but is rejected", func(t *testing.T) {
		ts, ok := ParseTimestamp("-9223372035154775808")
		require.True(t, ok)
		assert.False(t, TimestampWithinTolerance(ts, 300, 1_700_000_000))
	})
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int64
		ok    bool
	}{
		{"epoch seconds", "1700000000", 1700000000, true},
		{"padded epoch", "  1700000000 ", 1700000000, true},
		{"rfc3339", "2023-11-14T22:13:20Z", 1700000000, true},
		{"rfc3339 nano", "2023-11-14T22:13:20.123456789Z", 1700000000, true},
		{"rfc3339 offset", "2023-11-14T23:13:20+01:00", 1700000000, true},
		{"empty", "", 0, false},
		{"garbage", "yesterday", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	t.Run("success - medium size", func(t *testing.T) {
		secret, err := GenerateSecret(32)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(secret.String(), SecretPrefix))
		assert.Equal(t, 32, len(secret.Bytes()))
	})

	t.Run("error - too small", func(t *testing.T) {
		_, err := GenerateSecret(MinSecretBytes - 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be between")
	})

	t.Run("error - too large", func(t *testing.T) {
		_, err := GenerateSecret(MaxSecretBytes + 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be between")
	})
}

func TestParseSecret(t *testing.T) {
	t.Run("success - valid secret", func(t *testing.T) {
		original, err := GenerateSecret(32)
		require.NoError(t, err)

		parsed, err := ParseSecret(original.String())
		require.NoError(t, err)
		assert.Equal(t, original.Bytes(), parsed.Bytes())
	})

	t.Run("error - missing prefix", func(t *testing.T) {
		_, err := ParseSecret("dGVzdHNlY3JldA==")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must start with")
	})

	t.Run("error - invalid base64", func(t *testing.T) {
		_, err := ParseSecret(SecretPrefix + "not-valid-base64!!!")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding base64")
	})
}

func TestSignAndMatchAny(t *testing.T) {
	secret, err := GenerateSecret(32)
	require.NoError(t, err)
	rotated, err := GenerateSecret(32)
	require.NoError(t, err)

	msgID := "msg_test123"
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Unix()
	payload := []byte(`{"type":"test.event","data":{"foo":"bar"}}`)

	sig, err := Sign(secret, msgID, timestamp, payload)
	require.NoError(t, err)
	stale, err := Sign(rotated, msgID, timestamp, payload)
	require.NoError(t, err)

	t.Run("success - signature over id, timestamp and payload", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(sig.String(), "v1,"))
		want := GenerateHMAC(secret.Bytes(), []byte("msg_test123.1704110400."+string(payload)), Base64)
		assert.Equal(t, want, sig.Signature)
	})

	t.Run("success - any listed signature may match", func(t *testing.T) {
		assert.True(t, MatchAny(secret, msgID, timestamp, payload, []Signature{stale, sig}))
	})

	t.Run("failure - tampered payload or timestamp", func(t *testing.T) {
		assert.False(t, MatchAny(secret, msgID, timestamp, []byte(`{}`), []Signature{sig}))
		assert.False(t, MatchAny(secret, msgID, timestamp+1, payload, []Signature{sig}))
	})

	t.Run("failure - other versions are ignored", func(t *testing.T) {
		assert.False(t, MatchAny(secret, msgID, timestamp, payload, []Signature{{Version: "v1a", Signature: sig.Signature}}))
		assert.False(t, MatchAny(secret, msgID, timestamp, payload, nil))
	})

	t.Run("error - unusable message id", func(t *testing.T) {
		_, err := Sign(secret, "msg.with.periods", timestamp, payload)
		require.Error(t, err)
		assert.False(t, MatchAny(secret, "", timestamp, payload, []Signature{sig}))
	})
}

func TestParseSignatureHeader(t *testing.T) {
	t.Run("success - multiple signatures", func(t *testing.T) {
		sigs, err := ParseSignatureHeader("  v1,dGVzdA==   v1a,YW5vdGhlcg==  ")
		require.NoError(t, err)
		require.Len(t, sigs, 2)
		assert.Equal(t, "v1a", sigs[1].Version)
		assert.Equal(t, "v1,dGVzdA==", sigs[0].String())
	})

	t.Run("success - malformed entries are skipped", func(t *testing.T) {
		sigs, err := ParseSignatureHeader("garbage v1,dGVzdA== v1,")
		require.NoError(t, err)
		require.Len(t, sigs, 1)
		assert.Equal(t, "dGVzdA==", sigs[0].Signature)
	})

	t.Run("error - nothing usable", func(t *testing.T) {
		for _, header := range []string{"", "   ", "invalid"} {
			_, err := ParseSignatureHeader(header)
			assert.Error(t, err, header)
		}
	})
}
