package main

// Verdict is the outcome of comparing a presented certificate with the
// known_hosts record for its host.
type Verdict int

const (
	Trusted Verdict = iota
	NoRecord
	FingerprintMismatch
	DateChanged
)

func (v Verdict) String() string {
	switch v {
	case Trusted:
		return "trusted"
	case NoRecord:
		return "no record"
	case FingerprintMismatch:
		return "fingerprint mismatch"
	case DateChanged:
		return "date changed"
	default:
		return "unknown verdict"
	}
}

// Evaluate decides whether a certificate can be used. The fingerprint is
// compared before the date, so a changed key is never reported as a mere
// renewal. rec is nil when the host has no record.
func Evaluate(fingerprint string, notAfter int64, rec *KnownHost) Verdict {
	switch {
	case rec == nil:
		return NoRecord
	case rec.Fingerprint != fingerprint:
		return FingerprintMismatch
	case rec.NotAfter == nil || *rec.NotAfter != notAfter:
		return DateChanged
	default:
		return Trusted
	}
}
