// Package leads owns the connection and DM lifecycle of a lead. Every write
// re-validates the stored state in the same statement that changes it.
package leads

import "github.com/palma21/linkedin-outreach-bot/internal/models"

// allowedFrom lists, per target status, the statuses a lead may move from.
// connected is terminal and nothing moves back to unknown.
var allowedFrom = map[models.ConnectionStatus][]models.ConnectionStatus{
	models.ConnectionConnected:    {models.ConnectionUnknown, models.ConnectionNotConnected, models.ConnectionPending},
	models.ConnectionPending:      {models.ConnectionUnknown, models.ConnectionNotConnected},
	models.ConnectionNotConnected: {models.ConnectionUnknown},
}

// AllowedFrom returns the statuses from which a lead may move to status to
func AllowedFrom(to models.ConnectionStatus) []models.ConnectionStatus {
	from := allowedFrom[to]
	out := make([]models.ConnectionStatus, len(from))
	copy(out, from)
	return out
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to models.ConnectionStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CanDM reports whether a lead is eligible for a direct message
func CanDM(lead models.Lead) bool {
	return lead.ConnectionStatus == models.ConnectionConnected && lead.DMStatus == models.DMNotSent
}

// CanRequestConnection reports whether a connection request may be sent
func CanRequestConnection(lead models.Lead) bool {
	return CanTransition(lead.ConnectionStatus, models.ConnectionPending)
}
