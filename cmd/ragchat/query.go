package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/internal/server"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against a collection",
	Long: `Ask a question against a collection and print the sources followed by
the streamed answer. With --server the question goes through a running
ragchat HTTP API; otherwise the pipeline runs in this process.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := queryOptions{question: strings.Join(args, " ")}
		opts.collection, _ = cmd.Flags().GetString("collection")
		opts.model, _ = cmd.Flags().GetString("model")
		opts.system, _ = cmd.Flags().GetString("system")
		opts.serverURL, _ = cmd.Flags().GetString("server")
		noRerank, _ := cmd.Flags().GetBool("no-rerank")
		opts.rerank = !noRerank

		ctx, stop := signalContext()
		defer stop()

		out := newRenderer(cmd.OutOrStdout())
		if opts.serverURL != "" {
			return queryServer(ctx, http.DefaultClient, opts, out)
		}
		return queryLocal(ctx, opts, out)
	},
}

func init() {
	queryCmd.Flags().StringP("collection", "n", "", "collection to query (required)")
	queryCmd.Flags().StringP("model", "m", "llama3", "chat model")
	queryCmd.Flags().String("system", "", "instructions placed before the retrieved context")
	queryCmd.Flags().String("server", "", "base URL of a running ragchat API (e.g. http://localhost:3000)")
	queryCmd.Flags().Bool("no-rerank", false, "disable reranking")
	_ = queryCmd.MarkFlagRequired("collection")
}

type queryOptions struct {
	question   string
	collection string
	model      string
	system     string
	serverURL  string
	rerank     bool
}

func (o queryOptions) systemPrompt() *string {
	if o.system == "" {
		return nil
	}
	return &o.system
}

// renderer prints sources in color ahead of the plain answer text.
type renderer struct {
	w      io.Writer
	title  *color.Color
	source *color.Color
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:      w,
		title:  color.New(color.FgCyan, color.Bold),
		source: color.New(color.FgHiBlack),
	}
}

func (r *renderer) Sources(docs []types.Document) {
	if len(docs) == 0 {
		r.title.Fprintln(r.w, "No sources found.")
		fmt.Fprintln(r.w)
		return
	}
	r.title.Fprintln(r.w, "Sources:")
	for i, d := range docs {
		name := d.Source()
		if name == "" {
			name = "unknown"
		}
		r.source.Fprintf(r.w, "  [%d] %s (%s)\n", i+1, name, d.ID)
	}
	fmt.Fprintln(r.w)
}

func (r *renderer) Text(s string) {
	fmt.Fprint(r.w, s)
}

// Write lets the renderer receive answer tokens from a stream.Writer.
func (r *renderer) Write(p []byte) (int, error) {
	r.Text(string(p))
	return len(p), nil
}

func (r *renderer) Done() {
	fmt.Fprintln(r.w)
}

func queryLocal(ctx context.Context, opts queryOptions, out *renderer) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	prepared, err := a.rag.Prepare(ctx, rag.Request{
		Query:           opts.question,
		Collection:      opts.collection,
		Model:           opts.model,
		SystemPrompt:    opts.systemPrompt(),
		EnableReranking: opts.rerank,
	})
	if err != nil {
		return err
	}

	out.Sources(prepared.Sources)
	err = a.rag.Stream(ctx, prepared, stream.NewWriter(out, stream.FramingNone))
	out.Done()
	return err
}

// queryServer posts to /api/chat and decodes the framed response.
func queryServer(ctx context.Context, client *http.Client, opts queryOptions, out *renderer) error {
	body, err := json.Marshal(server.ChatRequest{
		ConnectionMode:  server.ModeRAG,
		Model:           opts.model,
		Messages:        []types.ChatTurn{{Role: types.RoleUser, Content: opts.question}},
		SystemPrompt:    opts.systemPrompt(),
		Collection:      opts.collection,
		EnableReranking: &opts.rerank,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(opts.serverURL, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stream.Header, string(stream.FramingLengthPrefixed))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", opts.serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			if e.Details != "" {
				return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode, e.Error, e.Details)
			}
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	framing, err := stream.ParseFraming(resp.Header.Get(stream.Header), stream.FramingLengthPrefixed)
	if err != nil {
		return err
	}
	err = stream.Decode(resp.Body, framing, out.Sources, out.Text)
	out.Done()
	return err
}
