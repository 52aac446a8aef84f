package server

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client calls the interpreter service over the Connect protocol.
type Client struct {
	run         *connect.Client[RunRequest, RunResponse]
	assemble    *connect.Client[AssembleRequest, AssembleResponse]
	disassemble *connect.Client[DisassembleRequest, DisassembleResponse]
	saveChunk   *connect.Client[SaveChunkRequest, SaveChunkResponse]
	listChunks  *connect.Client[ListChunksRequest, ListChunksResponse]
	deleteChunk *connect.Client[DeleteChunkRequest, DeleteChunkResponse]
	listRuns    *connect.Client[ListRunsRequest, ListRunsResponse]
	stats       *connect.Client[StatsRequest, StatsResponse]
}

// NewClient creates a Client for the server at baseURL, e.g.
// "http://localhost:8700". Messages are CBOR unless opts choose another codec.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(CBORCodec{})}, opts...)

	return &Client{
		run:         connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, opts...),
		assemble:    connect.NewClient[AssembleRequest, AssembleResponse](httpClient, baseURL+AssembleProcedure, opts...),
		disassemble: connect.NewClient[DisassembleRequest, DisassembleResponse](httpClient, baseURL+DisassembleProcedure, opts...),
		saveChunk:   connect.NewClient[SaveChunkRequest, SaveChunkResponse](httpClient, baseURL+SaveChunkProcedure, opts...),
		listChunks:  connect.NewClient[ListChunksRequest, ListChunksResponse](httpClient, baseURL+ListChunksProcedure, opts...),
		deleteChunk: connect.NewClient[DeleteChunkRequest, DeleteChunkResponse](httpClient, baseURL+DeleteChunkProcedure, opts...),
		listRuns:    connect.NewClient[ListRunsRequest, ListRunsResponse](httpClient, baseURL+ListRunsProcedure, opts...),
		stats:       connect.NewClient[StatsRequest, StatsResponse](httpClient, baseURL+StatsProcedure, opts...),
	}
}

func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	return unary(ctx, c.run, req)
}

func (c *Client) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	return unary(ctx, c.assemble, req)
}

func (c *Client) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	return unary(ctx, c.disassemble, req)
}

func (c *Client) SaveChunk(ctx context.Context, req *SaveChunkRequest) (*SaveChunkResponse, error) {
	return unary(ctx, c.saveChunk, req)
}

func (c *Client) ListChunks(ctx context.Context) (*ListChunksResponse, error) {
	return unary(ctx, c.listChunks, &ListChunksRequest{})
}

func (c *Client) DeleteChunk(ctx context.Context, name string) error {
	_, err := unary(ctx, c.deleteChunk, &DeleteChunkRequest{Name: name})
	return err
}

func (c *Client) ListRuns(ctx context.Context, name string) (*ListRunsResponse, error) {
	return unary(ctx, c.listRuns, &ListRunsRequest{Name: name})
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	return unary(ctx, c.stats, &StatsRequest{})
}

// Close is a no-op; the HTTP client owns the connections.
func (c *Client) Close() error {
	return nil
}

func unary[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// GRPCClient calls the interpreter service with grpc-go, using the CBOR
// codec as the gRPC content subtype. Errors are *connect.Error values.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target ("host:port") without TLS.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(CBORCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

// Close tears down the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	return invoke[RunResponse](ctx, c.conn, RunProcedure, req)
}

func (c *GRPCClient) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	return invoke[AssembleResponse](ctx, c.conn, AssembleProcedure, req)
}

func (c *GRPCClient) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	return invoke[DisassembleResponse](ctx, c.conn, DisassembleProcedure, req)
}

func (c *GRPCClient) SaveChunk(ctx context.Context, req *SaveChunkRequest) (*SaveChunkResponse, error) {
	return invoke[SaveChunkResponse](ctx, c.conn, SaveChunkProcedure, req)
}

func (c *GRPCClient) ListChunks(ctx context.Context) (*ListChunksResponse, error) {
	return invoke[ListChunksResponse](ctx, c.conn, ListChunksProcedure, &ListChunksRequest{})
}

func (c *GRPCClient) DeleteChunk(ctx context.Context, name string) error {
	_, err := invoke[DeleteChunkResponse](ctx, c.conn, DeleteChunkProcedure, &DeleteChunkRequest{Name: name})
	return err
}

func (c *GRPCClient) ListRuns(ctx context.Context, name string) (*ListRunsResponse, error) {
	return invoke[ListRunsResponse](ctx, c.conn, ListRunsProcedure, &ListRunsRequest{Name: name})
}

func (c *GRPCClient) Stats(ctx context.Context) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.conn, StatsProcedure, &StatsRequest{})
}

// invoke calls method and converts a gRPC status into a *connect.Error, so
// callers inspect failures from either client with connect.CodeOf.
func invoke[Res any](ctx context.Context, conn *grpc.ClientConn, method string, req any) (*Res, error) {
	var resp Res
	if err := conn.Invoke(ctx, method, req, &resp); err != nil {
		st := status.Convert(err)
		return nil, connect.NewError(connect.Code(st.Code()), errors.New(st.Message()))
	}
	return &resp, nil
}
