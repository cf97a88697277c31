package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredLines(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger := Setup(" msbd ", "test", WithWriter(&buf), WithLevel(slog.LevelWarn))
	logger.Info("dropped")
	logger.Warn("kept", slog.String("component", "apply"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	require.Equal(t, "WARN", record["severity"])
	require.Equal(t, "kept", record["message"])
	require.Equal(t, "msbd", record["service"])
	require.Equal(t, "test", record["env"])
	require.Equal(t, "apply", record["component"])
	require.Contains(t, record, "timestamp")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		" WARN": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected an unknown level to be rejected")
	}
}

func TestSetupRedactsUnlistedAttributes(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	logger := Setup("msbd", "", WithWriter(&buf))
	logger.Info("signed",
		slog.String("seed", "00ff00ff"),
		slog.String("signature", "abcdef"),
		slog.Any("nonce", []byte{1, 2, 3}),
		slog.String("Address", "msb1abc"),
		slog.Uint64("length", 7),
		slog.String("memo", ""),
		slog.Group("peer", slog.String("secret", "x")))
	log.Print("bridged")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	for _, key := range []string{"seed", "signature", "nonce"} {
		if record[key] != RedactedValue {
			t.Fatalf("%s = %v, want %s", key, record[key], RedactedValue)
		}
	}
	require.Equal(t, "msb1abc", record["Address"])
	require.EqualValues(t, 7, record["length"])
	require.Equal(t, "", record["memo"])
	require.Equal(t, map[string]any{"secret": RedactedValue}, record["peer"])
	require.Equal(t, "signed", record["message"])
	require.NotContains(t, buf.String(), "00ff00ff")

	var bridged map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &bridged))
	require.Equal(t, "bridged", bridged["message"])
	require.Equal(t, "msbd", bridged["service"])
}

func TestIsAllowlisted(t *testing.T) {
	require.True(t, IsAllowlisted(" TX"))
	require.True(t, IsAllowlisted("error"))
	require.False(t, IsAllowlisted("seed"))
}
