// Package logger configures the process-wide zerolog logger: a rotated log
// file, stdout (plain JSON or console) and optionally Axiom.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/local/pdftoolkit/internal/config"
)

// Service tags every event shipped to Axiom.
const Service = "pdftoolkit"

var (
	global  zerolog.Logger
	shipped *shipper
)

// Init builds the global logger from cfg. Events at info and above are also
// shipped to Axiom when ax.Send is set and an API key is present; a failing
// Axiom setup is reported on stderr and logging continues without it.
func Init(cfg config.LoggingConfig, ax config.AxiomConfig) error {
	writers, err := localWriters(cfg)
	if err != nil {
		return err
	}
	if ax.Send && ax.APIKey != "" {
		s, err := newShipper(ax)
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom disabled: %v\n", err)
		} else {
			shipped = s
			writers = append(writers, s)
		}
	}

	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	log.Logger = global
	// zerolog.Ctx falls back to this logger for contexts without one.
	zerolog.DefaultContextLogger = &global
	return nil
}

func localWriters(cfg config.LoggingConfig) ([]io.Writer, error) {
	var writers []io.Writer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}
	return writers, nil
}

// Close flushes events still queued for Axiom.
func Close() {
	if shipped != nil {
		shipped.Close()
		shipped = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// WithRequestID returns ctx carrying a sub-logger tagged with request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := log.Logger.With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

const (
	shipBuffer = 1024
	shipBatch  = 200
)

// shipper is an io.Writer that queues zerolog JSON lines and ingests them
// into an Axiom dataset in batches. A full queue drops events.
type shipper struct {
	client     *axiom.Client
	dataset    string
	flushEvery time.Duration

	events chan axiom.Event
	stop   chan struct{}
	done   chan struct{}
}

func newShipper(ax config.AxiomConfig) (*shipper, error) {
	opts := []axiom.Option{axiom.SetToken(ax.APIKey)}
	if ax.OrgID != "" {
		opts = append(opts, axiom.SetOrganizationID(ax.OrgID))
	}
	client, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	s := &shipper{
		client:     client,
		dataset:    ax.Dataset,
		flushEvery: ax.FlushInterval,
		events:     make(chan axiom.Event, shipBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if s.dataset == "" {
		s.dataset = "dev_" + Service
	}
	if s.flushEvery <= 0 {
		s.flushEvery = 10 * time.Second
	}
	go s.run()
	return s, nil
}

func (s *shipper) Write(p []byte) (int, error) {
	ev, ok := toEvent(p)
	if !ok {
		return len(p), nil
	}
	select {
	case s.events <- ev:
	default:
	}
	return len(p), nil
}

// toEvent decodes one log line. Debug events are not shipped.
func toEvent(p []byte) (axiom.Event, bool) {
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p), "level": "info"}
	}
	if lvl, _ := ev["level"].(string); lvl == zerolog.LevelDebugValue || lvl == zerolog.LevelTraceValue {
		return nil, false
	}
	ev["service"] = Service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	return ev, true
}

func (s *shipper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	pending := make([]axiom.Event, 0, shipBatch)
	for {
		select {
		case ev := <-s.events:
			pending = append(pending, ev)
			if len(pending) >= shipBatch {
				pending = s.ingest(pending)
			}
		case <-ticker.C:
			pending = s.ingest(pending)
		case <-s.stop:
			for {
				select {
				case ev := <-s.events:
					pending = append(pending, ev)
				default:
					s.ingest(pending)
					return
				}
			}
		}
	}
}

func (s *shipper) ingest(events []axiom.Event) []axiom.Event {
	if len(events) == 0 {
		return events
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := s.client.IngestEvents(ctx, s.dataset, events); err != nil {
		fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(events), err)
	}
	return events[:0]
}

// Close stops the shipper after a final flush.
func (s *shipper) Close() {
	close(s.stop)
	<-s.done
}
