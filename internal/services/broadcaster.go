package services

import "fairplay-backend/internal/games"

// Broadcaster fans crash round notifications out to whoever is
// listening. The game service neither knows nor cares how many
// listeners exist.
type Broadcaster interface {
	BroadcastCrashEvent(ev games.CrashEvent)
}
