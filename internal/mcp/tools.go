package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *mcp.Server, analyzer Analyzer, market MarketReader) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "analysis_run",
		Description: "Analyse a symbol: current news and price, similar past transactions, trend, risk, recommendation and an independent review of it",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in analysisRunInput) (*mcp.CallToolResult, analysisView, error) {
		if analyzer == nil {
			return nil, analysisView{}, fmt.Errorf("analysis service unavailable")
		}
		req, err := normalizeAnalysisInput(in, analyzer.Defaults())
		if err != nil {
			return nil, analysisView{}, err
		}
		result, err := analyzer.Analyze(ctx, req)
		if err != nil {
			return nil, analysisView{}, toolError(err)
		}
		return nil, toAnalysisView(result), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "similar_transactions",
		Description: "Find past transactions whose news context is most similar to the symbol's current headlines",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in similarTransactionsInput) (*mcp.CallToolResult, similarTransactionsOutput, error) {
		if analyzer == nil {
			return nil, similarTransactionsOutput{}, fmt.Errorf("analysis service unavailable")
		}
		symbol, err := normalizeSymbol(in.Symbol)
		if err != nil {
			return nil, similarTransactionsOutput{}, err
		}
		headlines, similar, err := analyzer.FindSimilar(ctx, symbol, normalizeLimit(in.Limit))
		if err != nil {
			return nil, similarTransactionsOutput{}, toolError(err)
		}
		return nil, similarTransactionsOutput{
			Symbol:       symbol,
			Headlines:    append([]string{}, headlines...),
			Transactions: toSimilarViews(similar),
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "news_list",
		Description: "Get the most recent headlines for a symbol",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in symbolInput) (*mcp.CallToolResult, newsListOutput, error) {
		if market == nil {
			return nil, newsListOutput{}, fmt.Errorf("market service unavailable")
		}
		symbol, err := normalizeSymbol(in.Symbol)
		if err != nil {
			return nil, newsListOutput{}, err
		}
		headlines, err := market.News(ctx, symbol)
		if err != nil {
			return nil, newsListOutput{}, toolError(err)
		}
		return nil, newsListOutput{Symbol: symbol, Headlines: toHeadlineViews(headlines)}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "price_get",
		Description: "Get the current market price for a symbol",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in symbolInput) (*mcp.CallToolResult, priceGetOutput, error) {
		if market == nil {
			return nil, priceGetOutput{}, fmt.Errorf("market service unavailable")
		}
		symbol, err := normalizeSymbol(in.Symbol)
		if err != nil {
			return nil, priceGetOutput{}, err
		}
		price, err := market.Price(ctx, symbol)
		if err != nil {
			return nil, priceGetOutput{}, toolError(err)
		}
		return nil, priceGetOutput{Symbol: symbol, Price: price}, nil
	})
}
