package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names used by Clerk's delivery system (Svix) to carry the
// delivery metadata alongside the signed body.
const (
	HeaderDeliveryID = "svix-id"
	HeaderTimestamp  = "svix-timestamp"
	HeaderSignature  = "svix-signature"
)

const secretPrefix = "whsec_"

const DefaultTolerance = 5 * time.Minute

var (
	// ErrMissingCredentials is returned when any of the three delivery
	// headers is absent from the request.
	ErrMissingCredentials = errors.New("webhook: missing delivery id, timestamp or signature header")

	// ErrInvalidSignature is returned when no signature candidate matches
	// the HMAC computed under the configured secret.
	ErrInvalidSignature = errors.New("webhook: signature mismatch")

	// ErrTimestampOutOfTolerance is returned when the delivery timestamp
	// is unparseable or lies outside the configured replay window.
	ErrTimestampOutOfTolerance = errors.New("webhook: delivery timestamp outside tolerance window")
)

// Delivery is one raw inbound webhook request: the three metadata values
// from the transport headers plus the untouched body bytes. It exists only
// long enough to be verified.
type Delivery struct {
	ID        string
	Timestamp string
	Signature string
	Body      []byte
}

// VerifierConfig configures signature verification. Now is overridable so
// tests can pin the clock when exercising the tolerance window.
type VerifierConfig struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// Verifier checks that a delivery was signed by the identity provider.
// The signed content is "{id}.{timestamp}.{body}" and the signature header
// carries one or more space separated "v1,<base64>" candidates.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a Verifier from the shared signing secret. An empty
// secret is a deployment fault and fails here, at construction, so the
// service refuses to start rather than rejecting every request at runtime.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("webhook: signing secret is not configured")
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to decode signing secret: %w", err)
	}

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{key: key, tolerance: tolerance, now: now}, nil
}

// Verify checks the delivery metadata and signature. It performs no side
// effects beyond the cryptographic comparison; acknowledging or acting on
// the delivery is the caller's job.
func (v *Verifier) Verify(d Delivery) error {
	if d.ID == "" || d.Timestamp == "" || d.Signature == "" {
		return ErrMissingCredentials
	}

	ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
	if err != nil {
		return ErrTimestampOutOfTolerance
	}
	delta := v.now().UTC().Sub(time.Unix(ts, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > v.tolerance {
		return ErrTimestampOutOfTolerance
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", d.ID, d.Timestamp)
	mac.Write(d.Body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(d.Signature) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		provided, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, provided) {
			return nil
		}
	}

	return ErrInvalidSignature
}
