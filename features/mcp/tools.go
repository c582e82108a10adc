package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"

	"opensim-assistant/internal/answer"
	"opensim-assistant/internal/docstore"
	"opensim-assistant/internal/retrieval"
)

const (
	ToolSearch    = "docs_search"
	ToolListPages = "docs_list_pages"
	ToolReadPage  = "docs_read_page"

	maxSearchLimit = 50
)

type SearchArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"Question or keywords to look up in the OpenSim documentation."`
	Limit *int   `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50" jsonschema_description:"Maximum number of passages to return."`
}

type ListPagesArgs struct{}

type ReadPageArgs struct {
	URL string `json:"url" jsonschema:"required" jsonschema_description:"URL of a documentation page, as returned by docs_search or docs_list_pages."`
}

// inputSchema reflects T into an inline JSON schema.
func inputSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	s := reflector.Reflect(v)
	s.Version = ""
	return s
}

func toolList() []Tool {
	return []Tool{
		{
			Name: ToolSearch,
			Description: `Search the OpenSim documentation index. Returns the passages closest to the query, best first, each with its page title and URL.

USAGE EXAMPLE:
docs_search(query="how do I scale a model", limit=5)`,
			InputSchema: inputSchema[SearchArgs](),
		},
		{
			Name: ToolListPages,
			Description: `Lists every documentation page the assistant has scraped, with title, section and type.

USAGE EXAMPLE:
docs_list_pages()`,
			InputSchema: inputSchema[ListPagesArgs](),
		},
		{
			Name: ToolReadPage,
			Description: `Returns the full text of one scraped documentation page. Use it when a search passage is not enough.

USAGE EXAMPLE:
docs_read_page(url="https://simtk-confluence.stanford.edu/display/OpenSim/Tutorials")`,
			InputSchema: inputSchema[ReadPageArgs](),
		},
	}
}

func (h *Handler) callTool(ctx context.Context, id any, params CallParams) *JSONRPCResponse {
	switch params.Name {
	case ToolSearch:
		return h.search(ctx, id, params.Arguments)
	case ToolListPages:
		return h.listPages(ctx, id)
	case ToolReadPage:
		return h.readPage(ctx, id, params.Arguments)
	}
	slog.WarnContext(ctx, "tool not found", "tool", params.Name)
	resp := makeErrorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
	return &resp
}

func (h *Handler) search(ctx context.Context, id any, raw json.RawMessage) *JSONRPCResponse {
	var args SearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		slog.WarnContext(ctx, "invalid search arguments", "error", err)
		resp := makeErrorResponse(id, ErrInvalidParams, "Invalid search arguments")
		return &resp
	}
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		resp := makeErrorResponse(id, ErrInvalidParams, "Query is required")
		return &resp
	}
	limit := h.defaultLimit
	if args.Limit != nil {
		if *args.Limit < 1 || *args.Limit > maxSearchLimit {
			resp := makeErrorResponse(id, ErrInvalidParams, fmt.Sprintf("Limit must be between 1 and %d", maxSearchLimit))
			return &resp
		}
		limit = *args.Limit
	}

	res, err := h.searcher.Answer(ctx, args.Query, limit)
	if errors.Is(err, retrieval.ErrNotReady) {
		return toolError(id, answer.NotReadyMessage)
	}
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		resp := makeErrorResponse(id, ErrInternal, "Search failed: "+err.Error())
		return &resp
	}

	var sb strings.Builder
	if res.Empty() {
		sb.WriteString(answer.NoResultsMessage)
	} else {
		for i, hit := range res.Hits {
			fmt.Fprintf(&sb, "Result %d (Score: %.2f):\n", i+1, hit.Score)
			if hit.Meta.Title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", hit.Meta.Title)
			}
			fmt.Fprintf(&sb, "URL: %s\n", hit.Meta.URL)
			if hit.Meta.Type != "" {
				fmt.Fprintf(&sb, "Type: %s\n", hit.Meta.Type)
			}
			fmt.Fprintf(&sb, "Content:\n%s\n\n---\n", hit.Text)
		}
		sb.WriteString("\nUse docs_read_page(url=\"...\") to read the full page of any result.\n")
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", len(res.Hits))
	return toolText(id, sb.String())
}

type pageSummary struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Type    string `json:"type"`
}

func (h *Handler) listPages(ctx context.Context, id any) *JSONRPCResponse {
	docs, err := h.library.Load()
	if err != nil {
		slog.ErrorContext(ctx, "list_pages failed", "error", err)
		return toolError(id, "Error: "+err.Error())
	}
	if len(docs) == 0 {
		return toolText(id, "No pages found.")
	}

	pages := make([]pageSummary, len(docs))
	for i, d := range docs {
		pages[i] = pageSummary{URL: d.URL, Title: d.Title, Section: d.Section, Type: d.Type}
	}
	b, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return toolError(id, "Error marshalling results")
	}
	return toolText(id, string(b))
}

func (h *Handler) readPage(ctx context.Context, id any, raw json.RawMessage) *JSONRPCResponse {
	var args ReadPageArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		slog.WarnContext(ctx, "invalid read_page arguments", "error", err)
		resp := makeErrorResponse(id, ErrInvalidParams, "Invalid arguments")
		return &resp
	}
	if args.URL == "" {
		resp := makeErrorResponse(id, ErrInvalidParams, "URL is required")
		return &resp
	}

	docs, err := h.library.Load()
	if err != nil {
		slog.ErrorContext(ctx, "read_page failed", "error", err)
		return toolError(id, "Error: "+err.Error())
	}
	d, ok := docstore.Find(docs, args.URL)
	if !ok {
		return toolText(id, "No content found for URL.")
	}
	text := fmt.Sprintf("Page: %s\nURL: %s\nSection: %s\nType: %s\n\n%s\n", d.Title, d.URL, d.Section, d.Type, d.Text)
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolReadPage, "chars", len(d.Text))
	return toolText(id, text)
}

func toolText(id any, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func toolError(id any, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: true,
		},
	}
}
