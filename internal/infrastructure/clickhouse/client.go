package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/infrastructure/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	maxExecutionTime   = 60
)

// Conn is the subset of driver.Conn the client uses.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
	Close() error
}

// Client writes history rows to ClickHouse.
type Client struct {
	conn Conn
}

// Connect opens a ClickHouse connection with LZ4 compression, pings it and
// creates the history tables.
//
// Parameters:
//   - ctx: Bounds the ping and schema creation
//   - cfg: ClickHouse configuration from config.yaml
//
// Returns:
//   - *Client: Ready client
//   - error: ErrDisabled, ErrConnectionFailed or a schema error
func Connect(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	dialTimeout := time.Duration(cfg.DialTimeout) * time.Second
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": maxExecutionTime,
		},
		DialTimeout: dialTimeout,
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}

	c := New(conn)
	if err := c.InitSchema(ctx); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return c, nil
}

// New wraps an already open connection.
func New(conn Conn) *Client {
	return &Client{conn: conn}
}

// InitSchema creates the history tables if they don't exist.
func (c *Client) InitSchema(ctx context.Context) error {
	for _, ddl := range AllTables() {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating clickhouse table: %w", err)
		}
	}
	return nil
}

// SaveSensorReading writes every known value of the reading. Unknown
// temperature or humidity values are skipped. Motion is always written.
func (c *Client) SaveSensorReading(ctx context.Context, reading device.SensorReading, ts time.Time) error {
	room := string(device.SensorEntity.Room)

	if v, ok := reading.TemperatureC.Float(); ok {
		if err := c.SaveTemperature(ctx, room, v, ts); err != nil {
			return err
		}
	}
	if v, ok := reading.HumidityPct.Float(); ok {
		if err := c.SaveHumidity(ctx, room, v, ts); err != nil {
			return err
		}
	}
	return c.SaveMotion(ctx, room, reading.MotionDetected, ts)
}

// SaveTemperature saves a temperature reading in degrees Celsius.
func (c *Client) SaveTemperature(ctx context.Context, room string, value float64, ts time.Time) error {
	return c.insert(ctx, "temperature",
		`INSERT INTO sensor_temperature (timestamp, room, value) VALUES (?, ?, ?)`,
		ts, room, value)
}

// SaveHumidity saves a relative humidity reading in percent.
func (c *Client) SaveHumidity(ctx context.Context, room string, value float64, ts time.Time) error {
	return c.insert(ctx, "humidity",
		`INSERT INTO sensor_humidity (timestamp, room, value) VALUES (?, ?, ?)`,
		ts, room, value)
}

// SaveMotion saves the motion flag.
func (c *Client) SaveMotion(ctx context.Context, room string, detected bool, ts time.Time) error {
	return c.insert(ctx, "motion",
		`INSERT INTO sensor_motion (timestamp, room, detected) VALUES (?, ?, ?)`,
		ts, room, detected)
}

// SaveDeviceState saves a device's status after a change.
func (c *Client) SaveDeviceState(ctx context.Context, d device.Device, ts time.Time) error {
	return c.insert(ctx, "device state",
		`INSERT INTO device_state (timestamp, room, device, status, pending) VALUES (?, ?, ?, ?, ?)`,
		ts, string(d.Key.Room), d.Key.Device, string(d.Status), d.Pending)
}

func (c *Client) insert(ctx context.Context, what, query string, args ...any) error {
	if err := c.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: inserting %s: %w", ErrWriteFailed, what, err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}
	return nil
}

// Close closes the connection. Safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing clickhouse connection: %w", err)
	}
	return nil
}
