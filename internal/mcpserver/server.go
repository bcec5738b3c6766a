// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes deck review tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/deckdoctor/internal/deckservice"
	"github.com/starford/deckdoctor/internal/llm"
)

// ContractURI is the resource URI of AnalysisContract.
const ContractURI = "deckdoctor://analysis-contract"

// Server wraps the MCP server with deckdoctor tools.
type Server struct {
	mcp *server.MCPServer
	svc *deckservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *deckservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"deckdoctor",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List the decks in the collection with their card counts."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List the cards of a deck with their plain-text questions."),
		mcp.WithNumber("deck_id", mcp.Required(), mcp.Description("Deck ID from list_decks")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("render_card",
		mcp.WithDescription("Render a card's question and answer HTML with media inlined."),
		mcp.WithNumber("card_id", mcp.Required(), mcp.Description("Card ID")),
	), s.renderCard)

	s.mcp.AddTool(mcp.NewTool("analyze_card",
		mcp.WithDescription("Review one card for learning quality. Unchanged cards are answered from the cache. "+
			"The reply follows the contract in the "+ContractURI+" resource."),
		mcp.WithNumber("card_id", mcp.Required(), mcp.Description("Card ID")),
	), s.analyzeCard)

	s.mcp.AddTool(mcp.NewTool("analyze_deck",
		mcp.WithDescription("Review every card of a deck, up to the configured limit, and return the run summary."),
		mcp.WithNumber("deck_id", mcp.Required(), mcp.Description("Deck ID")),
	), s.analyzeDeck)

	s.mcp.AddTool(mcp.NewTool("deck_insight",
		mcp.WithDescription("Aggregate a deck's card reviews into statistics and a knowledge coverage report. "+
			"Run analyze_deck first."),
		mcp.WithNumber("deck_id", mcp.Required(), mcp.Description("Deck ID")),
	), s.deckInsight)

	s.mcp.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Report the number and size of cached card reviews."),
	), s.cacheStats)

	s.mcp.AddTool(mcp.NewTool("get_analysis_contract",
		mcp.WithDescription("Returns the JSON shapes deckdoctor uses for card reviews and coverage reports."),
	), s.getAnalysisContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Analysis Contract",
			mcp.WithResourceDescription("JSON shapes of card reviews and deck coverage reports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports err to the client. Provider errors carry their
// suggestion so the client can act on it.
func toolError(err error) *mcp.CallToolResult {
	var pe *llm.Error
	if errors.As(err, &pe) && pe.Suggestion != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s\n%s", err.Error(), pe.Suggestion))
	}
	return mcp.NewToolResultError(err.Error())
}

func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	v, err := req.RequireFloat(key)
	if err != nil {
		return 0, err
	}
	if v != float64(int64(v)) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int64(v), nil
}

func (s *Server) listDecks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Decks(ctx))
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "deck_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.svc.DeckCards(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(cards)
}

func (s *Server) renderCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "card_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rc, err := s.svc.RenderCard(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rc)
}

func (s *Server) analyzeCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "card_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	review, err := s.svc.AnalyzeCard(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(review.Analysis)
}

func (s *Server) analyzeDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "deck_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.AnalyzeDeck(ctx, id, nil)
	if err != nil && len(res.Results) == 0 {
		return toolError(err), nil
	}
	summary := struct {
		Status  string `json:"status"`
		Results int    `json:"results"`
		Failed  int    `json:"failed"`
		Cached  int    `json:"cached"`
		Error   string `json:"error,omitempty"`
	}{Status: string(res.Status), Results: len(res.Results)}
	for _, r := range res.Results {
		switch {
		case !r.OK():
			summary.Failed++
		case r.FromCache:
			summary.Cached++
		}
	}
	if err != nil {
		summary.Error = err.Error()
	}
	return jsonResult(summary)
}

func (s *Server) deckInsight(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "deck_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.DeckInsight(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) cacheStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.CacheStats(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(stats)
}

func (s *Server) getAnalysisContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnalysisContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     AnalysisContract,
		},
	}, nil
}
