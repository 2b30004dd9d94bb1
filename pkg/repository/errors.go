package repository

import "errors"

// ErrNoDefaultSector is not returned by any Repository method:
// resolveOrganismIDs creates the default sector itself when it is missing.
var ErrNoDefaultSector = errors.New("repository: no default sector")
