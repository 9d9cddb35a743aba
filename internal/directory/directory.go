// Package directory exposes the slice of the user system the battle core
// needs: identity, display name, and last-known coordinates.
package directory

import "context"

type User struct {
	ID          string
	DisplayName string
	Latitude    float64
	Longitude   float64
}

type Directory interface {
	Lookup(ctx context.Context, userID string) (User, error)
}
