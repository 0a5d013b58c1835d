package notifier

import (
	"context"
	"strings"

	"MarketStructure/internal/model"
)

// Analyst runs the analysis tools. analysis.Analyzer implements it.
type Analyst interface {
	VolumeProfile(ctx context.Context, symbol string, tfs []model.Timeframe) *model.VolumeProfileResult
	Zones(ctx context.Context, symbol string, tfs []model.Timeframe) *model.ZonesResult
	ORB(ctx context.Context, symbol string, periods []int) *model.ORBResult
	FVG(ctx context.Context, symbol string, tfs []model.Timeframe) *model.FVGResult
}

const helpText = `<b>Market structure commands</b>
/orb SYMBOL - opening ranges, breakouts and bias
/fvg SYMBOL - nearest fair value gaps
/zones SYMBOL - support and resistance zones
/vp SYMBOL - volume profile
/help - this message`

// zonesPerFrame caps zone lines per timeframe in chat replies.
const zonesPerFrame = 5

// CommandRouter answers chat commands with formatted tool results.
type CommandRouter struct {
	analyst       Analyst
	defaultSymbol string
}

// NewCommandRouter creates a router; defaultSymbol is used when a command has no argument.
func NewCommandRouter(analyst Analyst, defaultSymbol string) *CommandRouter {
	return &CommandRouter{analyst: analyst, defaultSymbol: defaultSymbol}
}

// Handle implements CommandHandler.
func (c *CommandRouter) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	// "/orb@SomeBot SPY" in group chats
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	symbol := c.defaultSymbol
	if len(fields) > 1 {
		symbol = fields[1]
	}

	switch cmd {
	case "/help", "/start":
		return helpText
	case "/orb", "/fvg", "/zones", "/vp":
	default:
		return "Unknown command. Send /help for the list."
	}
	if symbol == "" {
		return "Usage: " + cmd + " SYMBOL"
	}

	switch cmd {
	case "/orb":
		return FormatORB(c.analyst.ORB(ctx, symbol, nil))
	case "/fvg":
		return FormatFVG(c.analyst.FVG(ctx, symbol, nil))
	case "/zones":
		return FormatZones(c.analyst.Zones(ctx, symbol, nil), zonesPerFrame)
	default:
		return FormatVolumeProfile(c.analyst.VolumeProfile(ctx, symbol, nil))
	}
}
