package verifier

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/marcelsud/webhook-gateway/webhook/payload"
	"github.com/marcelsud/webhook-gateway/webhook/signature"
)

// Default header names per scheme
const (
	DefaultSignatureHeader = "X-Webhook-Signature"
	DefaultTimestampHeader = "X-Webhook-Timestamp"
	DefaultKeyValueHeader  = "Webhook-Signature"

	StandardIDHeader        = "webhook-id"
	StandardTimestampHeader = "webhook-timestamp"
	StandardSignatureHeader = "webhook-signature"
)

// Headers names where a scheme reads its inputs; empty fields take defaults
type Headers struct {
	Signature string
	Timestamp string
	// Prefix is stripped from the signature value, e.g. "sha256="
	Prefix string
}

// payloadMetadata supplies the payload extraction shared by the built-ins
type payloadMetadata struct{}

func (payloadMetadata) ExtractEventID(body []byte) (string, bool) {
	return payload.ExtractID(body)
}

func (payloadMetadata) ExtractEventType(body []byte) (string, bool) {
	return payload.ExtractType(body)
}

/* HMACSHA256 is the generic header scheme
 * signature = hex(HMAC-SHA256(secret, "{timestamp}.{body}"))
 */
type HMACSHA256 struct {
	payloadMetadata
	headers Headers
}

// NewHMACSHA256 creates the generic timestamped hex HMAC verifier
func NewHMACSHA256(h Headers) *HMACSHA256 {
	if h.Signature == "" {
		h.Signature = DefaultSignatureHeader
	}
	if h.Timestamp == "" {
		h.Timestamp = DefaultTimestampHeader
	}
	return &HMACSHA256{headers: h}
}

func (v *HMACSHA256) SignaturePresent(headers http.Header) bool {
	return strings.TrimSpace(headers.Get(v.headers.Signature)) != ""
}

func (v *HMACSHA256) RequiresTimestamp() bool { return true }

func (v *HMACSHA256) ExtractTimestamp(headers http.Header) (int64, bool) {
	return signature.ParseTimestamp(headers.Get(v.headers.Timestamp))
}

func (v *HMACSHA256) VerifySignature(body []byte, headers http.Header, cfg Config) bool {
	if SkipVerification(cfg.Secret) {
		return false
	}

	raw := strings.TrimSpace(headers.Get(v.headers.Timestamp))
	if _, ok := signature.ParseTimestamp(raw); !ok {
		return false
	}

	given := strings.TrimPrefix(strings.TrimSpace(headers.Get(v.headers.Signature)), v.headers.Prefix)
	expected := signature.GenerateHMAC([]byte(cfg.Secret), signedContent(raw, body), signature.Hex)

	return signature.SecureCompare(expected, strings.ToLower(given))
}

/* Base64HMAC signs the raw body without a timestamp
 * signature = base64(HMAC-SHA256(secret, body))
 */
type Base64HMAC struct {
	payloadMetadata
	headers Headers
}

// NewBase64HMAC creates the untimestamped base64 HMAC verifier
func NewBase64HMAC(h Headers) *Base64HMAC {
	if h.Signature == "" {
		h.Signature = DefaultSignatureHeader
	}
	return &Base64HMAC{headers: h}
}

func (v *Base64HMAC) SignaturePresent(headers http.Header) bool {
	return strings.TrimSpace(headers.Get(v.headers.Signature)) != ""
}

func (v *Base64HMAC) ExtractTimestamp(headers http.Header) (int64, bool) {
	return 0, false
}

func (v *Base64HMAC) VerifySignature(body []byte, headers http.Header, cfg Config) bool {
	if SkipVerification(cfg.Secret) {
		return false
	}

	given := strings.TrimPrefix(strings.TrimSpace(headers.Get(v.headers.Signature)), v.headers.Prefix)
	expected := signature.GenerateHMAC([]byte(cfg.Secret), body, signature.Base64)

	return signature.SecureCompare(expected, given)
}

/* KeyValue reads a composite "t=...,v1=...,v1=..." header
 * Any v1 entry matching hex(HMAC-SHA256(secret, "{t}.{body}")) authenticates,
 * which lets a provider roll secrets while sending both signatures.
 */
type KeyValue struct {
	payloadMetadata
	headers Headers
}

const (
	keyValueTimestamp = "t"
	keyValueSignature = "v1"
)

// NewKeyValue creates the composite header verifier
func NewKeyValue(h Headers) *KeyValue {
	if h.Signature == "" {
		h.Signature = DefaultKeyValueHeader
	}
	return &KeyValue{headers: h}
}

func (v *KeyValue) SignaturePresent(headers http.Header) bool {
	return len(v.parse(headers).All(keyValueSignature)) > 0
}

func (v *KeyValue) RequiresTimestamp() bool { return true }

func (v *KeyValue) ExtractTimestamp(headers http.Header) (int64, bool) {
	return signature.ParseTimestamp(v.parse(headers).Get(keyValueTimestamp))
}

func (v *KeyValue) VerifySignature(body []byte, headers http.Header, cfg Config) bool {
	if SkipVerification(cfg.Secret) {
		return false
	}

	kv := v.parse(headers)
	raw := kv.Get(keyValueTimestamp)
	if _, ok := signature.ParseTimestamp(raw); !ok {
		return false
	}

	expected := signature.GenerateHMAC([]byte(cfg.Secret), signedContent(raw, body), signature.Hex)

	matched := false
	for _, candidate := range kv.All(keyValueSignature) {
		// no early return: every candidate is compared
		if signature.SecureCompare(expected, candidate) {
			matched = true
		}
	}
	return matched
}

func (v *KeyValue) parse(headers http.Header) signature.KeyValues {
	return signature.ParseKeyValueHeader(headers.Get(v.headers.Signature))
}

/* StandardWebhooks implements https://www.standardwebhooks.com
 * Secrets are whsec_ prefixed, the signed content is "{id}.{timestamp}.{body}"
 * and the signature header holds space-delimited "v1,<base64>" entries.
 */
type StandardWebhooks struct {
	payloadMetadata
}

// NewStandardWebhooks creates the Standard Webhooks verifier
func NewStandardWebhooks() *StandardWebhooks {
	return &StandardWebhooks{}
}

func (v *StandardWebhooks) SignaturePresent(headers http.Header) bool {
	return strings.TrimSpace(headers.Get(StandardSignatureHeader)) != ""
}

func (v *StandardWebhooks) RequiresTimestamp() bool { return true }

func (v *StandardWebhooks) ExtractTimestamp(headers http.Header) (int64, bool) {
	return signature.ParseTimestamp(headers.Get(StandardTimestampHeader))
}

func (v *StandardWebhooks) EventIDFromHeaders(headers http.Header) (string, bool) {
	id := strings.TrimSpace(headers.Get(StandardIDHeader))
	return id, id != ""
}

func (v *StandardWebhooks) VerifySignature(body []byte, headers http.Header, cfg Config) bool {
	secret, err := signature.ParseSecret(strings.TrimSpace(cfg.Secret))
	if err != nil {
		return false
	}

	msgID := strings.TrimSpace(headers.Get(StandardIDHeader))
	if msgID == "" {
		return false
	}

	ts, ok := v.ExtractTimestamp(headers)
	if !ok {
		return false
	}

	signatures, err := signature.ParseSignatureHeader(headers.Get(StandardSignatureHeader))
	if err != nil {
		return false
	}

	return signature.MatchAny(secret, msgID, ts, body, signatures)
}

// AlwaysPass accepts every request. Test-only.
type AlwaysPass struct {
	payloadMetadata
}

func (AlwaysPass) IsTestOnly() bool { return true }

func (AlwaysPass) ExtractTimestamp(headers http.Header) (int64, bool) {
	return 0, false
}

func (AlwaysPass) VerifySignature(body []byte, headers http.Header, cfg Config) bool {
	return true
}

/* Funcs adapts externally supplied functions to the Verifier interface
 * Nil extractors fall back to payload extraction; a nil Verify rejects.
 */
type Funcs struct {
	Verify    func(body []byte, headers http.Header, cfg Config) bool
	Timestamp func(headers http.Header) (int64, bool)
	EventID   func(body []byte) (string, bool)
	EventType func(body []byte) (string, bool)
}

func (f Funcs) VerifySignature(body []byte, headers http.Header, cfg Config) (ok bool) {
	if f.Verify == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return f.Verify(body, headers, cfg)
}

func (f Funcs) ExtractTimestamp(headers http.Header) (int64, bool) {
	if f.Timestamp == nil {
		return 0, false
	}
	return f.Timestamp(headers)
}

func (f Funcs) ExtractEventID(body []byte) (string, bool) {
	if f.EventID == nil {
		return payload.ExtractID(body)
	}
	return f.EventID(body)
}

func (f Funcs) ExtractEventType(body []byte) (string, bool) {
	if f.EventType == nil {
		return payload.ExtractType(body)
	}
	return f.EventType(body)
}

func signedContent(timestamp string, body []byte) []byte {
	return []byte(fmt.Sprintf("%s.%s", timestamp, body))
}

var (
	_ Verifier = (*HMACSHA256)(nil)
	_ Verifier = (*Base64HMAC)(nil)
	_ Verifier = (*KeyValue)(nil)
	_ Verifier = (*StandardWebhooks)(nil)
	_ Verifier = AlwaysPass{}
	_ Verifier = Funcs{}
)
