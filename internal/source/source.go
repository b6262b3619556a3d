// Package source holds what the external data clients share. Each
// subpackage adapts one public service to a pipeline collaborator.
package source

import (
	"context"

	collyfetcher "github.com/JakeFAU/municipal-distances/internal/fetcher/colly"
)

// Getter issues one HTTP GET.
type Getter interface {
	Get(ctx context.Context, rawURL string) (collyfetcher.Response, error)
}
