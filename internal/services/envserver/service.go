package envserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/plant_env/internal/metrics"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
)

// Handler serves one simulator over gRPC. Calls are serialized.
type Handler struct {
	mu      sync.Mutex
	sim     *plantsim.Simulator
	plantID string
	logger  *zap.Logger
}

var _ PlantEnvServer = (*Handler)(nil)

func NewHandler(sim *plantsim.Simulator, plantID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sim: sim, plantID: plantID, logger: logger}
}

// ============== RPC: Reset ==============

// Reset reseeds the simulator when the request carries a seed and returns a
// fresh observation. A request without a seed keeps the current source.
func (h *Handler) Reset(_ context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	seed, reseed, err := DecodeResetRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if reseed {
		h.sim.Seed(seed)
	}
	st := h.sim.Reset()
	metrics.Episodes.WithLabelValues(h.plantID).Inc()
	h.logger.Info("environment reset",
		zap.Bool("reseeded", reseed),
		zap.Uint64("seed", h.sim.CurrentSeed()),
		zap.Float64("soil", st.SoilHumidity),
		zap.Int("elapsed", st.ElapsedMinutes))
	return EncodeObservation(st), nil
}

// ============== RPC: Step ==============

func (h *Handler) Step(_ context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	v, err := DecodeActionVector(req)
	if err != nil {
		metrics.InvalidActions.WithLabelValues(h.plantID).Inc()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.mu.Lock()
	res, err := h.sim.StepVector(v)
	h.mu.Unlock()
	if err != nil {
		metrics.InvalidActions.WithLabelValues(h.plantID).Inc()
		if errors.Is(err, plantsim.ErrInvalidAction) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	a, _ := h.sim.ActionSpace().Parse(v)
	metrics.ObserveStep(h.plantID, "grpc", a, res.State, res.Reward)

	out, err := EncodeStepResult(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// NewServer returns a gRPC server with the handler registered and calls logged.
func NewServer(h *Handler, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(logger))}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterPlantEnvServer(srv, h)
	return srv
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
			zap.String("code", status.Code(err).String()))
		return resp, err
	}
}
