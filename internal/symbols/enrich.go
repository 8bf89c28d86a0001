package symbols

import (
	"context"
	"log/slog"

	"github.com/memvault/memvault/internal/model"
)

// Enrich populates item.Facets.Symbols by parsing item.Code when the
// caller left Symbols empty, item.Code is non-empty, and item.Language
// names a supported grammar. Callers that already supplied symbols are
// left untouched. Parse failures are logged and otherwise ignored: the
// item keeps whatever symbols it already had.
func Enrich(ctx context.Context, e *Extractor, item *model.MemoryItem, log *slog.Logger) {
	if item == nil || len(item.Facets.Symbols) > 0 || item.Code == "" {
		return
	}
	if !Supported(item.Language) {
		return
	}
	names, err := e.Extract(ctx, item.Language, []byte(item.Code))
	if err != nil {
		if log != nil {
			log.Warn("symbol extraction failed", "language", item.Language, "error", err)
		}
		return
	}
	item.Facets.Symbols = names
}
