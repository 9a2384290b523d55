package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"plant-detector-go/internal/domain/diagnosis"
)

const (
	ToolAnalyzePlant = "analyze_plant"
	ArgImagePath     = "image_path"
)

const analyzePlantDescription = `Analyze a plant image for diseases using Grok Vision AI.

This uses real AI vision analysis to detect diseases, spots, mold,
and other health issues in plant images.

Returns a JSON string. Check for an "error" key before reading the diagnosis fields.`

func analyzePlantTool() mcp.Tool {
	return mcp.NewTool(ToolAnalyzePlant,
		mcp.WithDescription(analyzePlantDescription),
		mcp.WithString(ArgImagePath,
			mcp.Required(),
			mcp.Description("Full path to the plant image file (JPEG, PNG, etc.)"),
		),
		mcp.WithTitleAnnotation("Analyze plant image"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// handleAnalyzePlant always answers with text content, errors included.
func (s *Server) handleAnalyzePlant(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorTag("MCP", "%s panicked: %v", ToolAnalyzePlant, r)
			result, err = mcp.NewToolResultText(diagnosis.APIError(fmt.Errorf("%v", r)).JSON()), nil
		}
	}()

	path, err := req.RequireString(ArgImagePath)
	if err != nil {
		s.logger.WarnTag("MCP", "%s: %v", ToolAnalyzePlant, err)
		return mcp.NewToolResultText(diagnosis.InvalidInput(err).JSON()), nil
	}

	outcome := s.analyzer.AnalyzePath(ctx, path)
	return mcp.NewToolResultText(outcome.JSON()), nil
}
