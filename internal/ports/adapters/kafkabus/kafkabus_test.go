package kafkabus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/forPelevin/hlshorts/internal/progress"
)

func TestNotify_SendsJSONEvent(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev progress.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Phase != progress.PhaseCompletion || ev.Session != "s1" || ev.Percent != 100 {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	obs := NewWithProducer(producer, "hlshorts.progress", nil)
	obs.Notify(context.Background(), progress.Event{Session: "s1", Phase: progress.PhaseCompletion, Percent: 100})

	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNotify_LogsSendFailure(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	var buf bytes.Buffer
	obs := NewWithProducer(producer, "hlshorts.progress", slog.New(slog.NewTextHandler(&buf, nil)))
	obs.Notify(context.Background(), progress.Event{Phase: progress.PhaseInit})

	if !strings.Contains(buf.String(), "kafka progress: send") {
		t.Fatalf("expected logged failure, got %q", buf.String())
	}
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewConfig_BoundsSends(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	for name, got := range map[string]time.Duration{
		"net dial":         cfg.Net.DialTimeout,
		"net read":         cfg.Net.ReadTimeout,
		"net write":        cfg.Net.WriteTimeout,
		"producer timeout": cfg.Producer.Timeout,
		"metadata timeout": cfg.Metadata.Timeout,
	} {
		if got <= 0 || got > sendTimeout {
			t.Fatalf("%s = %v, want (0, %v]", name, got, sendTimeout)
		}
	}
	if cfg.Producer.Retry.Max > 1 || cfg.Metadata.Retry.Max > 1 {
		t.Fatalf("retries not bounded: producer %d metadata %d", cfg.Producer.Retry.Max, cfg.Metadata.Retry.Max)
	}
}
