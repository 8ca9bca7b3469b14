package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	old := GetLogger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(old) })
	return logs
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger enabled with no level set")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	t.Cleanup(func() { SetLogger(nil) })

	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) || !core.Enabled(zapcore.WarnLevel) {
		t.Error("logger level is not warn")
	}
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("GetLogger() = nil")
	}
	Info("dropped")
}

func TestNamedAndHelpers(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	LogPhase(Named("coordinator"), "s-1", "init", "scanning")
	LogResource(Named("coordinator"), "coap://10.0.0.5:5683", "/light/1", []string{"oic.r.switch.binary"})
	LogConnection("127.0.0.1:4000", "connected")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].LoggerName != "coordinator" {
		t.Errorf("LoggerName = %q, want coordinator", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["to"]; got != "scanning" {
		t.Errorf("to = %v, want scanning", got)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Errorf("resource logged at %v, want debug", entries[1].Level)
	}
	if got := entries[2].ContextMap()["event"]; got != "connected" {
		t.Errorf("event = %v, want connected", got)
	}
}

func TestLogFrame(t *testing.T) {
	data := []byte{0x51, 0x01, 0x00, 0x01, 'o', 'i', 'c'}

	t.Run("skipped above debug", func(t *testing.T) {
		logs := observe(t, zapcore.InfoLevel)
		LogFrame(GetLogger(), "tx", "224.0.1.187:5683", data)
		if logs.Len() != 0 {
			t.Errorf("got %d entries, want 0", logs.Len())
		}
	})

	t.Run("dumped at debug", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)
		LogFrame(GetLogger(), "rx", "10.0.0.5:5683", data)

		entries := logs.FilterMessage("CoAP frame").All()
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		fields := entries[0].ContextMap()
		if fields["hex"] != "510100016f6963" {
			t.Errorf("hex = %v", fields["hex"])
		}
		if fields["ascii"] != "Q...oic" {
			t.Errorf("ascii = %v", fields["ascii"])
		}
		if fields["length"] != int64(len(data)) {
			t.Errorf("length = %v", fields["length"])
		}
	})
}

func TestDumpsTruncate(t *testing.T) {
	data := make([]byte, 300)
	if got := hexDump(data); !strings.HasSuffix(got, "...") || len(got) != 512+3 {
		t.Errorf("hexDump length = %d", len(got))
	}
	if got := asciiDump(data); len(got) != 256 {
		t.Errorf("asciiDump length = %d, want 256", len(got))
	}
	if hexDump(nil) != "" || asciiDump(nil) != "" {
		t.Error("empty input produced output")
	}
}
