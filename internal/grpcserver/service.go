package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"journaltransporter/internal/ingest"
	"journaltransporter/pkg/models"
)

const ServiceName = "transporter.v1.Transporter"

type ImportJournalRequest struct {
	Journal *ingest.JournalPayload `json:"journal"`
}

type ImportJournalResponse struct {
	Result *ingest.Result `json:"result"`
}

type GetJournalRequest struct {
	Path   string `json:"path"`
	Nested bool   `json:"nested,omitempty"`
}

type GetJournalResponse struct {
	Journal *models.Journal        `json:"journal"`
	Export  *ingest.JournalPayload `json:"export,omitempty"`
}

type ImportAccountRequest struct {
	Account *ingest.AccountPayload `json:"account"`
}

type ImportAccountResponse struct {
	Account *models.Account `json:"account"`
	Created bool            `json:"created"`
}

type TransporterServer interface {
	ImportJournal(context.Context, *ImportJournalRequest) (*ImportJournalResponse, error)
	GetJournal(context.Context, *GetJournalRequest) (*GetJournalResponse, error)
	ImportAccount(context.Context, *ImportAccountRequest) (*ImportAccountResponse, error)
}

func RegisterTransporterServer(s grpc.ServiceRegistrar, srv TransporterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransporterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ImportJournal", Handler: unary(TransporterServer.ImportJournal)},
		{MethodName: "GetJournal", Handler: unary(TransporterServer.GetJournal)},
		{MethodName: "ImportAccount", Handler: unary(TransporterServer.ImportAccount)},
	},
	Metadata: "transporter/v1/transporter.proto",
}

// unary adapts a typed method expression to a grpc.MethodDesc handler.
func unary[Req, Resp any](call func(TransporterServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TransporterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(ctx)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TransporterServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethod(ctx context.Context) string {
	if m, ok := grpc.Method(ctx); ok {
		return m
	}
	return ""
}

// Client calls the Transporter service with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ImportJournal(ctx context.Context, in *ImportJournalRequest, opts ...grpc.CallOption) (*ImportJournalResponse, error) {
	out := new(ImportJournalResponse)
	if err := c.invoke(ctx, "ImportJournal", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetJournal(ctx context.Context, in *GetJournalRequest, opts ...grpc.CallOption) (*GetJournalResponse, error) {
	out := new(GetJournalResponse)
	if err := c.invoke(ctx, "GetJournal", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ImportAccount(ctx context.Context, in *ImportAccountRequest, opts ...grpc.CallOption) (*ImportAccountResponse, error) {
	out := new(ImportAccountResponse)
	if err := c.invoke(ctx, "ImportAccount", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
