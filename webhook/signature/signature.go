package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretPrefix is the prefix for Standard Webhooks symmetric secrets
	SecretPrefix = "whsec_"

	// SignatureVersion is the version identifier for symmetric signatures
	SignatureVersion = "v1"

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

/* Encoding selects how an HMAC digest is rendered
 * Hex is lowercase, Base64 is standard padded base64
 */
type Encoding int

const (
	Hex Encoding = iota + 1
	Base64
)

// String returns the string representation of the encoding
func (e Encoding) String() string {
	switch e {
	case Hex:
		return "hex"
	case Base64:
		return "base64"
	default:
		return "unknown"
	}
}

// NewEncoding creates an Encoding from a string
func NewEncoding(s string) Encoding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base64":
		return Base64
	default:
		return Hex
	}
}

// SecureCompare reports whether a and b are equal without leaking timing
// information about where they differ. Empty inputs never match.
func SecureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateHMAC computes HMAC-SHA256 of data keyed by secret
func GenerateHMAC(secret, data []byte, enc Encoding) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sum := mac.Sum(nil)

	if enc == Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// TimestampWithinTolerance reports whether ts lies within tolerance seconds of
// now, in either direction.
func TimestampWithinTolerance(ts, toleranceSeconds, now int64) bool {
	if toleranceSeconds < 0 {
		return false
	}
	// the distance between two int64 values always fits in a uint64
	var diff uint64
	if ts > now {
		diff = uint64(ts) - uint64(now)
	} else {
		diff = uint64(now) - uint64(ts)
	}
	return diff <= uint64(toleranceSeconds)
}

// ParseTimestamp accepts integer epoch seconds or RFC3339 strings
func ParseTimestamp(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ts, true
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Unix(), true
		}
	}

	return 0, false
}

/* KeyValues is the parsed form of a "k=v,k=v" header
 * Repeated keys keep every value in first-seen order
 */
type KeyValues map[string][]string

// Get returns the first value stored for key
func (kv KeyValues) Get(key string) string {
	values := kv[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// All returns every value stored for key
func (kv KeyValues) All(key string) []string {
	return kv[key]
}

// IsList reports whether key was seen more than once
func (kv KeyValues) IsList(key string) bool {
	return len(kv[key]) > 1
}

// ParseKeyValueHeader splits a header like "t=123,v1=abc,v1=def" into its parts.
// Segments without '=' are ignored.
func ParseKeyValueHeader(value string) KeyValues {
	result := make(KeyValues)

	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = append(result[key], strings.TrimSpace(val))
	}

	return result
}

/* Secret is a provider signing secret in the Standard Webhooks "whsec_"
 * form. The gateway only parses these from provider configuration;
 * GenerateSecret exists so operators and tests can mint valid ones.
 */
type Secret struct {
	raw    []byte
	base64 string
}

// GenerateSecret creates a random secret of size bytes
func GenerateSecret(size int) (Secret, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return Secret{}, fmt.Errorf("generating random bytes: %w", err)
	}

	return Secret{
		raw:    bytes,
		base64: SecretPrefix + base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// ParseSecret decodes a configured "whsec_<base64>" secret. Providers fail
// validation at load time when this errors.
func ParseSecret(encoded string) (Secret, error) {
	if !strings.HasPrefix(encoded, SecretPrefix) {
		return Secret{}, fmt.Errorf("secret must start with %s prefix", SecretPrefix)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, SecretPrefix))
	if err != nil {
		return Secret{}, fmt.Errorf("decoding base64 secret: %w", err)
	}

	if len(raw) < MinSecretBytes || len(raw) > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	return Secret{
		raw:    raw,
		base64: encoded,
	}, nil
}

func (s Secret) String() string {
	return s.base64
}

func (s Secret) Bytes() []byte {
	return s.raw
}

// Signature is one "version,value" entry of a webhook-signature header
type Signature struct {
	Version   string
	Signature string
}

func (s Signature) String() string {
	return s.Version + "," + s.Signature
}

// Sign computes the v1 signature a sender puts on a message:
// base64 HMAC-SHA256 of "{msgID}.{timestamp}.{payload}"
func Sign(secret Secret, msgID string, timestamp int64, payload []byte) (Signature, error) {
	if msgID == "" || strings.Contains(msgID, ".") {
		return Signature{}, fmt.Errorf("message id must be non-empty and must not contain '.'")
	}

	signedContent := msgID + "." + strconv.FormatInt(timestamp, 10) + "." + string(payload)

	return Signature{
		Version:   SignatureVersion,
		Signature: GenerateHMAC(secret.Bytes(), []byte(signedContent), Base64),
	}, nil
}

// MatchAny reports whether any v1 entry in signatures is valid for the
// message. Senders rotating secrets list several entries; entries of other
// versions are ignored.
func MatchAny(secret Secret, msgID string, timestamp int64, payload []byte, signatures []Signature) bool {
	expected, err := Sign(secret, msgID, timestamp, payload)
	if err != nil {
		return false
	}

	matched := false
	for _, sig := range signatures {
		if sig.Version != SignatureVersion {
			continue
		}
		// compare every entry so timing does not reveal which one matched
		if SecureCompare(expected.Signature, sig.Signature) {
			matched = true
		}
	}
	return matched
}

// ParseSignatureHeader splits a space-delimited webhook-signature header,
// e.g. "v1,sig1 v1,sig2". Entries without a comma are skipped; a header
// with no usable entry is an error.
func ParseSignatureHeader(header string) ([]Signature, error) {
	var signatures []Signature
	for _, part := range strings.Fields(header) {
		version, value, ok := strings.Cut(part, ",")
		if !ok || version == "" || value == "" {
			continue
		}
		signatures = append(signatures, Signature{Version: version, Signature: value})
	}

	if len(signatures) == 0 {
		return nil, fmt.Errorf("no signatures found in header")
	}
	return signatures, nil
}
