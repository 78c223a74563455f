package shared

import (
	"net/rpc"
)

// EmbedArgs are the arguments for the Embed RPC call.
type EmbedArgs struct {
	Texts []string
}

// EmbedReply is the reply for the Embed RPC call.
type EmbedReply struct {
	Embeddings [][]float32
	Error      string
}

// RerankArgs are the arguments for the Rerank RPC call.
type RerankArgs struct {
	Query      string
	Candidates []Candidate
}

// RerankReply is the reply for the Rerank RPC call.
type RerankReply struct {
	RankedIDs []string
	Error     string
}

// rpcClient holds the calls both plugin kinds share.
type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) name() string {
	var resp string
	if err := c.client.Call("Plugin.Name", new(interface{}), &resp); err != nil {
		return ""
	}
	return resp
}

// callNoArgs invokes a method whose reply is an error message.
func (c *rpcClient) callNoArgs(method string) error {
	var resp string
	if err := c.client.Call("Plugin."+method, new(interface{}), &resp); err != nil {
		return err
	}
	return pluginError(resp)
}

// EmbeddingRPCClient is the host side of an embedding plugin.
type EmbeddingRPCClient struct {
	client *rpc.Client
}

func (c *EmbeddingRPCClient) base() *rpcClient { return &rpcClient{client: c.client} }

// Name returns the provider name.
func (c *EmbeddingRPCClient) Name() string { return c.base().name() }

// Embed generates embeddings for the given texts.
func (c *EmbeddingRPCClient) Embed(texts []string) ([][]float32, error) {
	var resp EmbedReply
	if err := c.client.Call("Plugin.Embed", &EmbedArgs{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if err := pluginError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Dimensions returns the embedding dimensions, 0 when the call fails.
func (c *EmbeddingRPCClient) Dimensions() int {
	var resp int
	if err := c.client.Call("Plugin.Dimensions", new(interface{}), &resp); err != nil {
		return 0
	}
	return resp
}

// Warmup warms up the provider.
func (c *EmbeddingRPCClient) Warmup() error { return c.base().callNoArgs("Warmup") }

// Close closes the provider.
func (c *EmbeddingRPCClient) Close() error { return c.base().callNoArgs("Close") }

// EmbeddingRPCServer is the plugin side of an embedding plugin.
type EmbeddingRPCServer struct {
	Impl EmbeddingProvider
}

func (s *EmbeddingRPCServer) Name(args interface{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

func (s *EmbeddingRPCServer) Embed(args *EmbedArgs, resp *EmbedReply) error {
	embeddings, err := s.Impl.Embed(args.Texts)
	resp.Embeddings = embeddings
	resp.Error = errorString(err)
	return nil
}

func (s *EmbeddingRPCServer) Dimensions(args interface{}, resp *int) error {
	*resp = s.Impl.Dimensions()
	return nil
}

func (s *EmbeddingRPCServer) Warmup(args interface{}, resp *string) error {
	*resp = errorString(s.Impl.Warmup())
	return nil
}

func (s *EmbeddingRPCServer) Close(args interface{}, resp *string) error {
	*resp = errorString(s.Impl.Close())
	return nil
}

// RerankerRPCClient is the host side of a reranker plugin.
type RerankerRPCClient struct {
	client *rpc.Client
}

func (c *RerankerRPCClient) base() *rpcClient { return &rpcClient{client: c.client} }

// Name returns the provider name.
func (c *RerankerRPCClient) Name() string { return c.base().name() }

// Rerank returns candidate ids ordered by relevance to query.
func (c *RerankerRPCClient) Rerank(query string, candidates []Candidate) ([]string, error) {
	var resp RerankReply
	if err := c.client.Call("Plugin.Rerank", &RerankArgs{Query: query, Candidates: candidates}, &resp); err != nil {
		return nil, err
	}
	if err := pluginError(resp.Error); err != nil {
		return nil, err
	}
	return resp.RankedIDs, nil
}

// Close closes the provider.
func (c *RerankerRPCClient) Close() error { return c.base().callNoArgs("Close") }

// RerankerRPCServer is the plugin side of a reranker plugin.
type RerankerRPCServer struct {
	Impl RerankerProvider
}

func (s *RerankerRPCServer) Name(args interface{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

func (s *RerankerRPCServer) Rerank(args *RerankArgs, resp *RerankReply) error {
	ids, err := s.Impl.Rerank(args.Query, args.Candidates)
	resp.RankedIDs = ids
	resp.Error = errorString(err)
	return nil
}

func (s *RerankerRPCServer) Close(args interface{}, resp *string) error {
	*resp = errorString(s.Impl.Close())
	return nil
}
