package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/tacmap/tacsim/internal/config"
)

// BucketSimulation receives engine telemetry.
const BucketSimulation = "simulation"

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketSimulation}

// ErrDisabled is returned by Connect when Influx is switched off in config.
var ErrDisabled = errors.New("influx disabled")

// Manager handles InfluxDB connections and writes. Points go to the backup
// file when the server is unreachable.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		cfg:         cfg,
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return fmt.Errorf("influx backup path not set")
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", orgName, err)
		}
	}

	// 30 day retention, telemetry only
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(m.cfg.Org, bucket)
		m.Writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// RecordTick writes an engine_tick point.
func (m *Manager) RecordTick(_ context.Context, sessions int, duration time.Duration) {
	p := influxdb2_write.NewPointWithMeasurement("engine_tick").
		AddField("sessions", sessions).
		AddField("duration_ms", float64(duration.Microseconds())/1000).
		SetTime(time.Now())
	if err := m.WritePoint(BucketSimulation, p); err != nil {
		m.Logger.Debug().Err(err).Msg("failed to record tick")
	}
}

// RecordDecision writes a force_ratio point for one decision cycle. An
// unbounded ratio is written as the field opposing_destroyed instead.
func (m *Manager) RecordDecision(_ context.Context, sessionID string, forceRatio float64, controlled, opposing int) {
	p := influxdb2_write.NewPointWithMeasurement("force_ratio").
		AddTag("session", sessionID).
		AddField("controlled", controlled).
		AddField("opposing", opposing).
		SetTime(time.Now())
	if math.IsInf(forceRatio, 0) || math.IsNaN(forceRatio) {
		p.AddField("opposing_destroyed", true)
	} else {
		p.AddField("ratio", forceRatio)
	}
	if err := m.WritePoint(BucketSimulation, p); err != nil {
		m.Logger.Debug().Err(err).Msg("failed to record decision")
	}
}

// RecordStatus writes an engine_status point.
func (m *Manager) RecordStatus(sessions, units, trackers int, lastTick time.Duration) {
	p := influxdb2_write.NewPointWithMeasurement("engine_status").
		AddField("sessions", sessions).
		AddField("units", units).
		AddField("trackers", trackers).
		AddField("last_tick_ms", float64(lastTick.Microseconds())/1000).
		SetTime(time.Now())
	if err := m.WritePoint(BucketSimulation, p); err != nil {
		m.Logger.Debug().Err(err).Msg("failed to record status")
	}
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			return fmt.Errorf("error closing backup writer: %w", err)
		}
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		if err := m.backupFile.Close(); err != nil {
			return fmt.Errorf("error closing backup file: %w", err)
		}
		m.backupFile = nil
	}
	return nil
}
