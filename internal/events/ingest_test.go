package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/database/dbtest"
)

func newIngestor(t *testing.T) (*Ingestor, *audit.Log, int64) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.InsertUser(t, db, "usr-alice", "alice")
	id := dbtest.InsertDevice(t, db, "AABBCCDDEEFF", "usr-alice")

	dir := device.NewDirectory(device.NewSQLiteRepository(db), config.DevicesConfig{}, nil)
	log := audit.NewLog(audit.NewSQLiteRepository(db), nil)
	return NewIngestor(dir, log, nil), log, id
}

func TestIngestor_Ingest(t *testing.T) {
	in, log, id := newIngestor(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []audit.Entry
	)
	log.Subscribe(audit.ListenerFunc(func(e audit.Entry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
	}))

	entry, err := in.Ingest(ctx, "aa:bb:cc:dd:ee:ff", LogInput{
		Level:   "WARNING",
		Message: "  motor stalled ",
		Meta:    map[string]any{"current_ma": 900.0},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if entry.DeviceID != id || entry.Level != audit.LevelWarn || entry.Message != "motor stalled" {
		t.Errorf("entry = %+v", entry)
	}

	res, err := log.Query(ctx, audit.Filter{DeviceID: id})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 1 || res.Entries[0].Meta["current_ma"] != 900.0 {
		t.Errorf("stored = %+v", res.Entries)
	}
	if len(seen) != 1 {
		t.Errorf("listener saw %d entries, want 1", len(seen))
	}
}

func TestIngestor_Rejects(t *testing.T) {
	in, _, _ := newIngestor(t)

	tests := []struct {
		name    string
		serial  string
		input   LogInput
		wantErr error
	}{
		{"unknown device", "112233445566", LogInput{Message: "hi"}, device.ErrDeviceNotFound},
		{"malformed serial", "nope", LogInput{Message: "hi"}, device.ErrDeviceNotFound},
		{"bad level", "AABBCCDDEEFF", LogInput{Level: "loud", Message: "hi"}, audit.ErrInvalidEntry},
		{"empty message", "AABBCCDDEEFF", LogInput{Message: "  "}, audit.ErrInvalidEntry},
		{"forged sentinel", "AABBCCDDEEFF", LogInput{Message: audit.MessageFeedExecuted}, ErrReservedMessage},
		{"forged push", "AABBCCDDEEFF", LogInput{Message: audit.MessageSchedulePushed}, ErrReservedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := in.Ingest(context.Background(), tt.serial, tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIngestor_HandleMQTT(t *testing.T) {
	in, log, id := newIngestor(t)

	if err := in.HandleMQTT("feeder/AABBCCDDEEFF/log", []byte(`{"level":"error","message":"lid stuck"}`)); err != nil {
		t.Fatalf("HandleMQTT() error = %v", err)
	}

	res, err := log.Query(context.Background(), audit.Filter{DeviceID: id})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 1 || res.Entries[0].Level != audit.LevelError {
		t.Errorf("stored = %+v", res.Entries)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"wrong leaf", "feeder/AABBCCDDEEFF/feed", `{"message":"x"}`},
		{"system topic", "feeder/system/status", `{"message":"x"}`},
		{"bad json", "feeder/AABBCCDDEEFF/log", `{`},
		{"unknown device", "feeder/112233445566/log", `{"message":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := in.HandleMQTT(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("HandleMQTT() expected error")
			}
		})
	}
}
