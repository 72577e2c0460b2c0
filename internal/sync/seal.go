package sync

import (
	"filippo.io/age"

	"github.com/aegis-agent/aegis/internal/secrets"
)

// sealer seals/opens an approval.Request's ContinuationRef before it
// crosses the process boundary, per spec.md §3 ("Pending continuation...
// opaque payload"). Confidentiality is optional: with no recipient
// configured (no age identity on this host), sealing is a no-op and
// the ref travels in the clear — the same "best-effort, never block
// the caller" posture the rest of the bridge takes toward sync itself.
type sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

func newSealer(identity *age.X25519Identity) sealer {
	if identity == nil {
		return sealer{}
	}
	return sealer{identity: identity, recipient: identity.Recipient()}
}

func (s sealer) seal(ref string) (string, error) {
	if s.recipient == nil || ref == "" {
		return ref, nil
	}
	return secrets.Encrypt(ref, s.recipient)
}

func (s sealer) open(ref string) (string, error) {
	if s.identity == nil || !secrets.IsEncrypted(ref) {
		return ref, nil
	}
	return secrets.Decrypt(ref, s.identity)
}
