package exchange

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "surveyexchange.v1.Exchange"

// ExchangeServer is the server API. Requests and responses are
// google.protobuf.Struct documents keyed by camelCase field names.
type ExchangeServer interface {
	SignInAnonymously(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartFill(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BindMatchResponse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyResponse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessVerification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResponses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPointsRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckExpiredMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ExchangeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExchangeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExchangeServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Exchange service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignInAnonymously", ExchangeServer.SignInAnonymously),
		unary("SignIn", ExchangeServer.SignIn),
		unary("CreateMatch", ExchangeServer.CreateMatch),
		unary("StartFill", ExchangeServer.StartFill),
		unary("BindMatchResponse", ExchangeServer.BindMatchResponse),
		unary("VerifyResponse", ExchangeServer.VerifyResponse),
		unary("ProcessVerification", ExchangeServer.ProcessVerification),
		unary("ListMatches", ExchangeServer.ListMatches),
		unary("ListResponses", ExchangeServer.ListResponses),
		unary("GetPoints", ExchangeServer.GetPoints),
		unary("ListPointsRecords", ExchangeServer.ListPointsRecords),
		unary("CheckExpiredMatches", ExchangeServer.CheckExpiredMatches),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "surveyexchange/v1/exchange.proto",
}

func RegisterExchangeServer(s grpc.ServiceRegistrar, srv ExchangeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls Exchange methods over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method (e.g. "CreateMatch") with req as the request document.
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
