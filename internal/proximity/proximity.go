// Package proximity pushes quick-challenge invitations to connected users
// near the creator's last known position.
package proximity

import (
	"context"
	"math"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/directory"
	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

type Connections interface {
	ConnectedIDs() []string
	Send(userID string, ev types.ServerEvent)
}

type Broadcaster struct {
	Dir      directory.Directory
	Conns    Connections
	RadiusKM float64
	Log      *zap.Logger
}

// Invite pushes a quick_challenge_nearby event to every connected user within
// the radius of the creator, excluding the creator, and returns the invited
// ids so the coordinator can retract losing invitations later.
func (p *Broadcaster) Invite(ctx context.Context, b battle.Battle) ([]string, error) {
	creator, err := p.Dir.Lookup(ctx, b.CreatorID)
	if err != nil {
		return nil, err
	}
	var invited []string
	for _, id := range p.Conns.ConnectedIDs() {
		if id == b.CreatorID {
			continue
		}
		candidate, err := p.Dir.Lookup(ctx, id)
		if err != nil {
			// Connected but unknown to the directory; skip.
			continue
		}
		dist := Haversine(creator.Latitude, creator.Longitude, candidate.Latitude, candidate.Longitude)
		if dist > p.RadiusKM {
			continue
		}
		p.Conns.Send(id, types.NewNearby(b, types.NearbyUser{
			ID:          creator.ID,
			DisplayName: creator.DisplayName,
		}, dist))
		invited = append(invited, id)
	}
	p.Log.Info("quick challenge broadcast",
		zap.String("battle", b.ID), zap.Int("invited", len(invited)))
	return invited, nil
}
