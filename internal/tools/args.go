package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ksktechai/livecontext-ai/internal/llm"
)

func stringArg(args llm.Arguments, key, def string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args llm.Arguments, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return def
		}
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func floatArg(args llm.Arguments, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}
