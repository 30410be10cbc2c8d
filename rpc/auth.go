package rpc

import (
	"bytes"
	"container/list"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"xlend/crypto"
)

// SigningDomain prefixes every signed request message.
const SigningDomain = "XLEND_V1"

const (
	defaultTimestampSkew = 2 * time.Minute
	defaultNonceCapacity = 65536
)

var (
	errMissingSignature = errors.New("rpc: missing signature")
	errBadSignature     = errors.New("rpc: signature does not match signer")
	errStaleTimestamp   = errors.New("rpc: timestamp outside allowed window")
	errReplayedNonce    = errors.New("rpc: nonce already used")
)

// Envelope wraps the payload of every mutating request together with the
// identity that signed it.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signer    string          `json:"signer"`
	Nonce     string          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// SigningMessage returns the bytes a signer commits to for a request on
// route. route is the HTTP method and path, e.g. "POST /v1/orders/7/cancel".
func SigningMessage(route string, timestamp int64, nonce string, payload []byte) ([]byte, error) {
	var canonical bytes.Buffer
	if len(bytes.TrimSpace(payload)) == 0 {
		canonical.WriteString("{}")
	} else if err := json.Compact(&canonical, payload); err != nil {
		return nil, fmt.Errorf("rpc: canonical payload: %w", err)
	}
	msg := strings.Join([]string{
		SigningDomain,
		route,
		strconv.FormatInt(timestamp, 10),
		nonce,
		canonical.String(),
	}, "|")
	return []byte(msg), nil
}

// SignEnvelope marshals payload and signs it with key for route.
func SignEnvelope(key *crypto.PrivateKey, route string, payload any, now time.Time) (*Envelope, error) {
	if key == nil {
		return nil, errors.New("rpc: signing key required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode payload: %w", err)
	}
	env := &Envelope{
		Payload:   raw,
		Signer:    key.PubKey().Address().String(),
		Nonce:     uuid.NewString(),
		Timestamp: now.Unix(),
	}
	msg, err := SigningMessage(route, env.Timestamp, env.Nonce, env.Payload)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(crypto.Digest(msg))
	if err != nil {
		return nil, err
	}
	env.Signature = "0x" + hex.EncodeToString(sig)
	return env, nil
}

// verifier authenticates envelopes and rejects replays.
type verifier struct {
	skew   time.Duration
	now    func() time.Time
	nonces *nonceCache
}

func newVerifier(skew time.Duration, capacity int, now func() time.Time) *verifier {
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if now == nil {
		now = time.Now
	}
	return &verifier{skew: skew, now: now, nonces: newNonceCache(2*skew, capacity)}
}

// verify returns the ledger address that signed env for route.
func (v *verifier) verify(route string, env *Envelope) ([20]byte, error) {
	var zero [20]byte
	if env == nil || strings.TrimSpace(env.Signature) == "" || strings.TrimSpace(env.Signer) == "" {
		return zero, errMissingSignature
	}
	if strings.TrimSpace(env.Nonce) == "" {
		return zero, errors.New("rpc: nonce required")
	}
	signer, err := crypto.DecodeAddress20(env.Signer, crypto.XLPrefix)
	if err != nil {
		return zero, fmt.Errorf("rpc: signer: %w", err)
	}
	now := v.now()
	issued := time.Unix(env.Timestamp, 0)
	if issued.Before(now.Add(-v.skew)) || issued.After(now.Add(v.skew)) {
		return zero, errStaleTimestamp
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return zero, fmt.Errorf("rpc: signature encoding: %w", err)
	}
	msg, err := SigningMessage(route, env.Timestamp, env.Nonce, env.Payload)
	if err != nil {
		return zero, err
	}
	recovered, err := crypto.RecoverAddress(crypto.Digest(msg), sig)
	if err != nil {
		return zero, errBadSignature
	}
	if recovered.Bytes20() != signer {
		return zero, errBadSignature
	}
	if !v.nonces.remember(env.Signer+"|"+env.Nonce, now) {
		return zero, errReplayedNonce
	}
	return signer, nil
}

// nonceCache remembers recently seen nonces in arrival order. Entries expire
// after ttl; once capacity is reached the oldest entry is evicted.
type nonceCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type nonceEntry struct {
	key  string
	seen time.Time
}

func newNonceCache(ttl time.Duration, capacity int) *nonceCache {
	if capacity <= 0 {
		capacity = defaultNonceCapacity
	}
	return &nonceCache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// remember records key and reports whether it was unseen.
func (c *nonceCache) remember(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	if _, ok := c.entries[key]; ok {
		return false
	}
	for c.order.Len() >= c.capacity {
		c.evict(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(&nonceEntry{key: key, seen: now})
	return true
}

func (c *nonceCache) prune(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if front.Value.(*nonceEntry).seen.After(cutoff) {
			return
		}
		c.evict(front)
	}
}

func (c *nonceCache) evict(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*nonceEntry).key)
}
