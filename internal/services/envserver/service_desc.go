package envserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service is described with protobuf well-known types only, so no
// generated stubs are needed:
//
//	service PlantEnv {
//	  rpc Reset(google.protobuf.Struct) returns (google.protobuf.ListValue);
//	  rpc Step(google.protobuf.ListValue) returns (google.protobuf.Struct);
//	}
//
// The Reset request carries an optional numeric "seed" field. Without it the
// server keeps its current random source; an explicit 0 reseeds with 0.
const (
	ServiceName     = "plantenv.PlantEnv"
	resetFullMethod = "/" + ServiceName + "/Reset"
	stepFullMethod  = "/" + ServiceName + "/Step"
)

// PlantEnvServer is the server API for the PlantEnv service.
type PlantEnvServer interface {
	Reset(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	Step(context.Context, *structpb.ListValue) (*structpb.Struct, error)
}

func RegisterPlantEnvServer(s grpc.ServiceRegistrar, srv PlantEnvServer) {
	s.RegisterService(&PlantEnvServiceDesc, srv)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlantEnvServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resetFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PlantEnvServer).Reset(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func stepHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlantEnvServer).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stepFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PlantEnvServer).Step(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// PlantEnvServiceDesc is the grpc.ServiceDesc for the PlantEnv service.
var PlantEnvServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlantEnvServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "Step", Handler: stepHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plantenv.proto",
}
