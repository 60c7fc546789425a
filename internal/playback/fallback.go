package playback

import (
	"time"

	"nowplaying/internal/spotify"
)

// FromRecentlyPlayed builds a paused snapshot from the most recent play so
// the dashboard has something to show when nothing is currently playing.
func FromRecentlyPlayed(item spotify.PlayHistory, now time.Time) *spotify.PlaybackState {
	deviceID := ""
	if item.Context != nil {
		deviceID = item.Context.URI
	}
	volume := 100

	timestamp := now.UnixMilli()
	if item.PlayedAt != "" {
		if playedAt, err := time.Parse(time.RFC3339Nano, item.PlayedAt); err == nil {
			timestamp = playedAt.UnixMilli()
		}
	}

	track := item.Track
	return &spotify.PlaybackState{
		Device: spotify.Device{
			ID:            deviceID,
			Name:          "Last Device",
			Type:          "Computer",
			IsActive:      false,
			VolumePercent: &volume,
		},
		RepeatState:          "off",
		ShuffleState:         false,
		Context:              item.Context,
		Timestamp:            timestamp,
		ProgressMs:           0,
		IsPlaying:            false,
		Item:                 &track,
		CurrentlyPlayingType: "track",
	}
}
