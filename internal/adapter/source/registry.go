// Package source assembles the import handlers of the configured formats.
package source

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/adapter/source/ofx"
	"github.com/iho/goimport/internal/importer"
)

// Handlers returns a handler for every configured CSV format followed by the
// OFX handler. Earlier handlers win when several accept a file.
func Handlers(formats []importer.CSVSourceConfig, connector importer.Connector, logger zerolog.Logger) ([]*importer.Handler, error) {
	handlers := make([]*importer.Handler, 0, len(formats)+1)
	for _, format := range formats {
		src, err := importer.NewCSVSource(format)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", format.Name, err)
		}
		handlers = append(handlers, importer.NewHandler(src, connector, logger))
	}
	handlers = append(handlers, importer.NewHandler(ofx.NewSource(ofx.DefaultName, logger), connector, logger))
	return handlers, nil
}
