package label

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// Usage identifies where a label is printed; each usage keeps its own size.
type Usage string

const (
	UsageBarcode Usage = "barcode"
	UsageQR      Usage = "qr"
	UsageOrderQR Usage = "order_qr"
)

var defaultGeometry = map[Usage]model.Geometry{
	UsageBarcode: {WidthMm: 100, HeightMm: 50},
	UsageQR:      {WidthMm: 100, HeightMm: 100},
	UsageOrderQR: {WidthMm: 80, HeightMm: 80},
}

func geometryKey(u Usage) string {
	return "label.geometry." + string(u)
}

// DefaultGeometry returns the built-in label size for a usage.
func DefaultGeometry(u Usage) model.Geometry {
	if g, ok := defaultGeometry[u]; ok {
		return g
	}
	return defaultGeometry[UsageQR]
}

// SavedGeometry reads the stored {width,height} for a usage. Missing, unreadable
// or invalid values fall back to the default size.
func SavedGeometry(ctx context.Context, store kvstore.Store, u Usage) model.Geometry {
	fallback := DefaultGeometry(u)
	if store == nil {
		return fallback
	}

	var g model.Geometry
	err := kvstore.GetJSON(ctx, store, geometryKey(u), &g)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return fallback
	case err != nil:
		slog.Warn("failed to read saved label geometry", "usage", u, "error", err)
		return fallback
	}
	if g.Validate() != nil {
		slog.Warn("ignoring invalid saved label geometry", "usage", u, "width", g.WidthMm, "height", g.HeightMm)
		return fallback
	}
	return g
}

func SaveGeometry(ctx context.Context, store kvstore.Store, u Usage, g model.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return kvstore.SetJSON(ctx, store, geometryKey(u), g)
}
