package envserver

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
)

type ClientConfig struct {
	Target          string
	Timeout         time.Duration // per call
	BreakerFailures uint32        // consecutive transport failures before opening
	BreakerOpenFor  time.Duration
	ResetRetries    uint64
}

// Client talks to a remote PlantEnv behind a circuit breaker.
type Client struct {
	conn    *grpc.ClientConn
	breaker *gobreaker.CircuitBreaker
	cfg     ClientConfig
	logger  *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 1
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 10 * time.Second
	}
	if cfg.ResetRetries == 0 {
		cfg.ResetRetries = 3
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Target, err)
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "plantenv",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// rejected actions are the caller's fault, not the server's
		IsSuccessful: func(err error) bool {
			return !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{conn: conn, breaker: breaker, cfg: cfg, logger: logger}, nil
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func (c *Client) Close() error { return c.conn.Close() }

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() gobreaker.State { return c.breaker.State() }

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return nil, c.conn.Invoke(cctx, method, in, out)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Reset asks for a new episode; seed < 0 keeps the server's random source.
// Transport failures are retried with exponential backoff.
func (c *Client) Reset(ctx context.Context, seed int64) (entities.SensorState, error) {
	var st entities.SensorState
	op := func() error {
		out := new(structpb.ListValue)
		if err := c.invoke(ctx, resetFullMethod, EncodeResetRequest(seed), out); err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("reset failed, retrying", zap.Error(err))
			return err
		}
		decoded, err := DecodeObservation(out)
		if err != nil {
			return backoff.Permanent(err)
		}
		st = decoded
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 5 * c.cfg.Timeout
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.ResetRetries), ctx)); err != nil {
		return entities.SensorState{}, err
	}
	return st, nil
}

func (c *Client) Step(ctx context.Context, a entities.Action) (plantsim.StepResult, error) {
	return c.StepVector(ctx, a.Vector())
}

// StepVector sends a raw vector; the server validates it.
func (c *Client) StepVector(ctx context.Context, v []float64) (plantsim.StepResult, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, stepFullMethod, numberList(v), out); err != nil {
		return plantsim.StepResult{}, err
	}
	return DecodeStepResult(out)
}
