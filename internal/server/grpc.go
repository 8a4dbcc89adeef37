package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sagebattle/sage-server-go/internal/config"
	"github.com/sagebattle/sage-server-go/internal/game"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sagebattle.v1.GameService"

// GameServiceServer is the action endpoint. Requests and responses are
// google.protobuf.Struct messages.
type GameServiceServer interface {
	CreateGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AttemptAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// gameService implements GameServiceServer on top of a game.Manager.
type gameService struct {
	manager *game.Manager
	logger  *zap.Logger
}

// NewGameService creates the action endpoint for manager.
func NewGameService(manager *game.Manager, logger *zap.Logger) GameServiceServer {
	return &gameService{manager: manager, logger: logger}
}

// CreateGame starts a new match. Request: {"team_size": 1|2}. Response:
// {"game_id", "phase"}.
func (s *gameService) CreateGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	teamSize := 1
	if v, ok := req.GetFields()["team_size"]; ok {
		teamSize = int(v.GetNumberValue())
	}
	g, err := s.manager.CreateGame(ctx, teamSize)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"game_id": g.ID(),
		"phase":   string(g.Phase()),
	})
}

// AttemptAction submits one player action. Request: {"game_id", "player_id",
// "action", "payload"}. Response: {"phase", "winner"}. A game that is not in memory is
// restored from the store first.
func (s *gameService) AttemptAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	gameID := strings.TrimSpace(fields["game_id"].GetStringValue())
	playerID := strings.TrimSpace(fields["player_id"].GetStringValue())
	action := rules.Action(strings.TrimSpace(fields["action"].GetStringValue()))
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id is required")
	}
	if playerID == "" {
		return nil, status.Error(codes.InvalidArgument, "player_id is required")
	}
	if action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}

	var payload game.Payload
	if raw := fields["payload"].GetStructValue(); raw != nil {
		data, err := raw.MarshalJSON()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "payload: %v", err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "payload: %v", err)
		}
	}

	if _, err := s.manager.Load(ctx, gameID); err != nil {
		return nil, toStatus(err)
	}
	res, err := s.manager.AttemptAction(ctx, gameID, playerID, action, payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"phase":  string(res.Phase),
		"winner": res.Winner,
	})
}

// GetGame returns the full snapshot of a game. Request: {"game_id"}.
func (s *gameService) GetGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := strings.TrimSpace(req.GetFields()["game_id"].GetStringValue())
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id is required")
	}
	g, err := s.manager.Load(ctx, gameID)
	if err != nil {
		return nil, toStatus(err)
	}
	data, err := json.Marshal(g.Snapshot())
	if err != nil {
		return nil, toStatus(gameerr.Internal("marshal snapshot: %v", err))
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, toStatus(gameerr.Internal("convert snapshot: %v", err))
	}
	return out, nil
}

func unaryHandler(call func(GameServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GameServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(GameServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// GameServiceDesc describes the service for grpc.Server.RegisterService.
var GameServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateGame", Handler: unaryHandler(GameServiceServer.CreateGame, "CreateGame")},
		{MethodName: "AttemptAction", Handler: unaryHandler(GameServiceServer.AttemptAction, "AttemptAction")},
		{MethodName: "GetGame", Handler: unaryHandler(GameServiceServer.GetGame, "GetGame")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sagebattle/v1/game.proto",
}

// NewGRPCServer builds a server with the game and health services registered. The
// health status of ServiceName starts SERVING.
func NewGRPCServer(cfg config.GRPCConfig, svc GameServiceServer, logger *zap.Logger) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentStreams)))
	}
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&GameServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// GameClient calls GameService over a client connection.
type GameClient struct {
	cc grpc.ClientConnInterface
}

// NewGameClient wraps cc.
func NewGameClient(cc grpc.ClientConnInterface) *GameClient {
	return &GameClient{cc: cc}
}

func (c *GameClient) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateGame starts a match and returns its ID.
func (c *GameClient) CreateGame(ctx context.Context, teamSize int) (string, error) {
	out, err := c.invoke(ctx, "CreateGame", map[string]any{"team_size": teamSize})
	if err != nil {
		return "", err
	}
	return out.GetFields()["game_id"].GetStringValue(), nil
}

// AttemptAction submits an action and returns the resulting phase and winner.
func (c *GameClient) AttemptAction(ctx context.Context, gameID, playerID string, action rules.Action, payload game.Payload) (game.Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return game.Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return game.Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	out, err := c.invoke(ctx, "AttemptAction", map[string]any{
		"game_id":   gameID,
		"player_id": playerID,
		"action":    string(action),
		"payload":   raw,
	})
	if err != nil {
		return game.Result{}, err
	}
	f := out.GetFields()
	return game.Result{
		Phase:  rules.Phase(f["phase"].GetStringValue()),
		Winner: int(f["winner"].GetNumberValue()),
	}, nil
}

// GetGame fetches the current snapshot of a game.
func (c *GameClient) GetGame(ctx context.Context, gameID string) (*game.Snapshot, error) {
	out, err := c.invoke(ctx, "GetGame", map[string]any{"game_id": gameID})
	if err != nil {
		return nil, err
	}
	data, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return game.DecodeJSON(data, "")
}
