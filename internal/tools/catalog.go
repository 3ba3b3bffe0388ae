package tools

import (
	"encoding/json"

	"github.com/ksktechai/livecontext-ai/internal/llm"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// Tool names advertised to the model.
const (
	GetQuote   = "get_quote"
	SearchNews = "search_news"
	GetWeather = "get_weather"
)

const (
	defaultSymbol    = "AAPL.US"
	defaultInterval  = "daily"
	defaultNewsLimit = 5
	defaultLatitude  = 40.7128
	defaultLongitude = -74.0060
)

var quoteSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "symbol": {
      "type": "string",
      "description": "Stock symbol with exchange suffix, e.g., AAPL.US for Apple, TSLA.US for Tesla, GOOGL.US for Google"
    },
    "interval": {
      "type": "string",
      "description": "Time interval: daily, weekly, or monthly"
    }
  },
  "required": ["symbol"]
}`)

var newsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "Search query for news articles"
    },
    "limit": {
      "type": "integer",
      "description": "Maximum number of results to return"
    }
  },
  "required": ["query"]
}`)

var weatherSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "latitude": {
      "type": "number",
      "description": "Latitude of the location"
    },
    "longitude": {
      "type": "number",
      "description": "Longitude of the location"
    }
  },
  "required": ["latitude", "longitude"]
}`)

// Descriptors returns the fixed tool table in advertisement order.
func Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        GetQuote,
			Description: "Get stock market quote and price data for a given stock symbol. Use this for any questions about stock prices, market data, or financial instruments.",
			Parameters:  quoteSchema,
			Service:     "market",
			RemoteTool:  "get_quote",
			Source:      "Market MCP",
			Translate: func(args llm.Arguments) map[string]any {
				return map[string]any{
					"symbol":   stringArg(args, "symbol", defaultSymbol),
					"interval": stringArg(args, "interval", defaultInterval),
				}
			},
		},
		{
			Name:        SearchNews,
			Description: "Search for recent news articles on a topic. Use this for questions about current events, news, or recent developments.",
			Parameters:  newsSchema,
			Service:     "news",
			RemoteTool:  "search",
			Source:      "News MCP",
			Translate: func(args llm.Arguments) map[string]any {
				return map[string]any{
					"query": stringArg(args, "query", ""),
					"limit": intArg(args, "limit", defaultNewsLimit),
				}
			},
		},
		{
			Name:        GetWeather,
			Description: "Get current weather and forecast for a location. Use this for questions about weather conditions.",
			Parameters:  weatherSchema,
			Service:     "weather",
			RemoteTool:  "get_forecast",
			Source:      "Weather MCP",
			Translate: func(args llm.Arguments) map[string]any {
				return map[string]any{
					"latitude":  floatArg(args, "latitude", defaultLatitude),
					"longitude": floatArg(args, "longitude", defaultLongitude),
				}
			},
		},
	}
}

// DefaultCatalog builds the registry of market, news and weather tools
// dispatching through invoker.
func DefaultCatalog(invoker Invoker) *Registry {
	registry := NewRegistry()
	for _, desc := range Descriptors() {
		tool := NewRemoteTool(desc, invoker)
		// names in the table are unique
		_ = registry.Register(tool)
		log.Debug("Registered tool: name=%s service=%s", tool.Name(), tool.Service())
	}
	log.Info("Tool catalog ready: tools=%d", registry.Count())
	return registry
}
