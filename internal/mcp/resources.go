package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerResources(server *mcp.Server, analyzer Analyzer) {
	server.AddResource(&mcp.Resource{
		URI:         "analysis://defaults",
		Name:        "analysis-defaults",
		Description: "Default limit and thresholds used by analysis_run, plus the possible recommendations",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if analyzer == nil {
			return nil, fmt.Errorf("analysis service unavailable")
		}
		return jsonResource(req.Params.URI, defaultsView(analyzer.Defaults()))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "analysis://symbol/{symbol}",
		Name:        "analysis-by-symbol",
		Description: "Fresh analysis for a symbol using default settings",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if analyzer == nil {
			return nil, fmt.Errorf("analysis service unavailable")
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "analysis" || parsed.Host != "symbol" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		analysisReq, err := normalizeAnalysisInput(analysisRunInput{
			Symbol: strings.Trim(strings.TrimSpace(parsed.Path), "/"),
		}, analyzer.Defaults())
		if err != nil {
			return nil, err
		}
		result, err := analyzer.Analyze(ctx, analysisReq)
		if err != nil {
			return nil, toolError(err)
		}
		return jsonResource(req.Params.URI, toAnalysisView(result))
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
