package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// VaultServiceName is the fully qualified gRPC service name
const VaultServiceName = "rugsfun.vault.v1.VaultService"

// Method names
const (
	MethodInitializeVault = "InitializeVault"
	MethodDeposit         = "Deposit"
	MethodWithdraw        = "Withdraw"
	MethodGetVault        = "GetVault"
	MethodListTransfers   = "ListTransfers"
	MethodAirdrop         = "Airdrop"
)

// FullMethod returns the wire path of method, as seen by interceptors
func FullMethod(method string) string {
	return "/" + VaultServiceName + "/" + method
}

// VaultServiceServer is the server API for VaultService.
// Requests and responses are google.protobuf.Struct messages.
type VaultServiceServer interface {
	InitializeVault(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVault(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransfers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Airdrop(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterVaultServiceServer registers srv on s
func RegisterVaultServiceServer(s grpc.ServiceRegistrar, srv VaultServiceServer) {
	s.RegisterService(&VaultServiceDesc, srv)
}

type unaryCall func(VaultServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VaultServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(VaultServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// VaultServiceDesc is the grpc.ServiceDesc for VaultService
var VaultServiceDesc = grpc.ServiceDesc{
	ServiceName: VaultServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodInitializeVault, Handler: unaryHandler(MethodInitializeVault, VaultServiceServer.InitializeVault)},
		{MethodName: MethodDeposit, Handler: unaryHandler(MethodDeposit, VaultServiceServer.Deposit)},
		{MethodName: MethodWithdraw, Handler: unaryHandler(MethodWithdraw, VaultServiceServer.Withdraw)},
		{MethodName: MethodGetVault, Handler: unaryHandler(MethodGetVault, VaultServiceServer.GetVault)},
		{MethodName: MethodListTransfers, Handler: unaryHandler(MethodListTransfers, VaultServiceServer.ListTransfers)},
		{MethodName: MethodAirdrop, Handler: unaryHandler(MethodAirdrop, VaultServiceServer.Airdrop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rugsfun/vault/v1/vault.proto",
}

// VaultClient is the client API for VaultService
type VaultClient struct {
	cc grpc.ClientConnInterface
}

// NewVaultClient creates a client on cc
func NewVaultClient(cc grpc.ClientConnInterface) *VaultClient {
	return &VaultClient{cc: cc}
}

func (c *VaultClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VaultClient) InitializeVault(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodInitializeVault, in, opts...)
}

func (c *VaultClient) Deposit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeposit, in, opts...)
}

func (c *VaultClient) Withdraw(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodWithdraw, in, opts...)
}

func (c *VaultClient) GetVault(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetVault, in, opts...)
}

func (c *VaultClient) ListTransfers(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListTransfers, in, opts...)
}

func (c *VaultClient) Airdrop(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAirdrop, in, opts...)
}
