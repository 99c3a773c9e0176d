package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("gemini://example.org/docs/?q=1")
	require.NoError(t, err)
	require.Equal(t, Target{Host: "example.org", Port: 1965, Path: "/docs/", Query: "q=1"}, tgt)
	require.Equal(t, "example.org:1965", tgt.Addr())
	require.Equal(t, "gemini://example.org/docs/?q=1\r\n", tgt.RequestLine())
}

func TestParseTarget_DefaultPortOmitted(t *testing.T) {
	tgt, err := ParseTarget("gemini://example.org:1965")
	require.NoError(t, err)
	require.Equal(t, "/", tgt.Path)
	require.Equal(t, "gemini://example.org/\r\n", tgt.RequestLine())
}

func TestParseTarget_OtherPortKept(t *testing.T) {
	tgt, err := ParseTarget("gemini://example.org:1966/a%20b")
	require.NoError(t, err)
	require.Equal(t, uint16(1966), tgt.Port)
	require.Equal(t, "gemini://example.org:1966/a%20b\r\n", tgt.RequestLine())
}

func TestParseTarget_IPv6(t *testing.T) {
	tgt, err := ParseTarget("gemini://[::1]/")
	require.NoError(t, err)
	require.Equal(t, "::1", tgt.Host)
	require.Equal(t, "[::1]:1965", tgt.Addr())
	require.Equal(t, "gemini://[::1]/", tgt.URL())

	tgt.Port = 7000
	require.Equal(t, "gemini://[::1]:7000/", tgt.URL())
}

func TestParseTarget_IDN(t *testing.T) {
	tgt, err := ParseTarget("gemini://Bücher.example/")
	require.NoError(t, err)
	require.Equal(t, "xn--bcher-kva.example", tgt.Host)
}

func TestParseTarget_Invalid(t *testing.T) {
	for _, raw := range []string{
		"https://example.org/",
		"gemini:///path",
		"gemini://user@example.org/",
		"gemini://example.org:0/",
		"gemini://example.org:99999/",
		"gemini://example.org/" + strings.Repeat("a", MaxRequestLength),
	} {
		_, err := ParseTarget(raw)
		require.ErrorIs(t, err, ErrProtocol, raw)
	}
}

func TestTarget_WithInput(t *testing.T) {
	tgt := Target{Host: "example.org", Port: DefaultPort, Path: "/search", Query: "old"}

	next, err := tgt.WithInput("hello world & more")
	require.NoError(t, err)
	require.Equal(t, "gemini://example.org/search?hello%20world%20%26%20more", next.URL())
	require.Equal(t, "old", tgt.Query)

	_, err = tgt.WithInput(strings.Repeat("x", MaxRequestLength))
	require.ErrorIs(t, err, ErrProtocol)
}
