package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	rec := &KnownHost{Host: "example.org", Fingerprint: "AA:BB", NotAfter: epoch(1700000000)}
	undated := &KnownHost{Host: "example.org", Fingerprint: "AA:BB"}

	require.Equal(t, NoRecord, Evaluate("AA:BB", 1700000000, nil))
	require.Equal(t, Trusted, Evaluate("AA:BB", 1700000000, rec))
	require.Equal(t, FingerprintMismatch, Evaluate("CC:DD", 1700000000, rec))
	require.Equal(t, DateChanged, Evaluate("AA:BB", 1800000000, rec))
	require.Equal(t, DateChanged, Evaluate("AA:BB", 1700000000, undated))
}

func TestEvaluate_FingerprintBeforeDate(t *testing.T) {
	rec := &KnownHost{Host: "example.org", Fingerprint: "AA:BB", NotAfter: epoch(1700000000)}

	require.Equal(t, FingerprintMismatch, Evaluate("CC:DD", 1800000000, rec))
	require.Equal(t, FingerprintMismatch, Evaluate("CC:DD", 0, &KnownHost{Fingerprint: "AA:BB"}))
}

func TestVerdict_String(t *testing.T) {
	require.Equal(t, "trusted", Trusted.String())
	require.Equal(t, "date changed", DateChanged.String())
	require.Equal(t, "unknown verdict", Verdict(42).String())
}
