package pipeline

import "errors"

// Fatal preconditions: without these the run cannot produce any output.
var (
	ErrEntitiesUnavailable  = errors.New("municipality list unavailable")
	ErrScoresUnavailable    = errors.New("score table unavailable")
	ErrReferenceUnavailable = errors.New("reference city could not be geocoded")
	ErrNoEntities           = errors.New("municipality list not cached; run build with network access first")
)
