// Package posecache keeps the latest odometry and current reports in Redis so that other
// processes can read the base's pose without subscribing to the report stream.
package posecache

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"omnibase/control"
)

// Defaults for the cache.
const (
	DefaultAddress   = "localhost:6379"
	DefaultKeyPrefix = "omnibase"
	DefaultTTL       = 10 * time.Second
)

// Options configures the Redis connection and keys.
type Options struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// WithDefaults returns o with every unset field filled in.
func (o Options) WithDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// Client is the subset of the Redis API the cache uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// PoseRecord is the cached odometry.
type PoseRecord struct {
	Stamp        time.Time `json:"stamp"`
	FrameID      string    `json:"frame_id"`
	ChildFrameID string    `json:"child_frame_id"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Theta        float64   `json:"theta"`
	VX           float64   `json:"vx"`
	VY           float64   `json:"vy"`
	VTheta       float64   `json:"vtheta"`
}

// CurrentRecord is the cached controller effort.
type CurrentRecord struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
	IX      float64   `json:"i_x"`
	IY      float64   `json:"i_y"`
	ITheta  float64   `json:"i_theta"`
}

// Cache writes the latest reports under <prefix>:odom and <prefix>:current.
type Cache struct {
	client Client
	opts   Options
}

// Connect opens a Redis client and checks the server is reachable.
func Connect(ctx context.Context, opts Options) (*Cache, error) {
	opts = opts.WithDefaults()
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "failed to connect to Redis at %s", opts.Address)
	}
	return New(rdb, opts), nil
}

// New returns a cache writing through client.
func New(client Client, opts Options) *Cache {
	return &Cache{client: client, opts: opts.WithDefaults()}
}

// Close releases the client if it holds a connection.
func (c *Cache) Close() error {
	if closer, ok := c.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// OdomKey is the key holding the latest odometry.
func (c *Cache) OdomKey() string {
	return c.opts.KeyPrefix + ":odom"
}

// CurrentKey is the key holding the latest current report.
func (c *Cache) CurrentKey() string {
	return c.opts.KeyPrefix + ":current"
}

func (c *Cache) ReportOdometry(ctx context.Context, odom control.OdometryReport) error {
	return c.set(ctx, c.OdomKey(), PoseRecord{
		Stamp:        odom.Stamp,
		FrameID:      odom.FrameID,
		ChildFrameID: odom.ChildFrameID,
		X:            odom.Pose.X,
		Y:            odom.Pose.Y,
		Theta:        odom.Pose.Theta,
		VX:           odom.Twist.VX,
		VY:           odom.Twist.VY,
		VTheta:       odom.Twist.VTheta,
	})
}

// ReportTransform is a no-op; the pose record already holds the transform.
func (c *Cache) ReportTransform(context.Context, control.TransformReport) error {
	return nil
}

func (c *Cache) ReportCurrent(ctx context.Context, current control.CurrentReport) error {
	return c.set(ctx, c.CurrentKey(), CurrentRecord{
		Stamp:   current.Stamp,
		FrameID: current.FrameID,
		IX:      current.IX,
		IY:      current.IY,
		ITheta:  current.ITheta,
	})
}

// Pose reads back the cached odometry. It returns redis.Nil when nothing is cached.
func (c *Cache) Pose(ctx context.Context) (PoseRecord, error) {
	var rec PoseRecord
	val, err := c.client.Get(ctx, c.OdomKey()).Result()
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return rec, errors.Wrap(err, "failed to unmarshal cached pose")
	}
	return rec, nil
}

func (c *Cache) set(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	if err := c.client.Set(ctx, key, payload, c.opts.TTL).Err(); err != nil {
		return errors.Wrapf(err, "failed to save %s to Redis", key)
	}
	return nil
}
