package spotify

// User is the subset of the /me profile the dashboard renders.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"`
	Followers   Followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// AvatarURL returns the first profile image, if any.
func (u User) AvatarURL() string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

type Followers struct {
	Total int `json:"total"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track describes the playing item. Episodes decode into the same shape
// without an album.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri,omitempty"`
	DurationMs int      `json:"duration_ms"`
	Artists    []Artist `json:"artists,omitempty"`
	Album      *Album   `json:"album,omitempty"`
}

// Device is a Spotify Connect target.
type Device struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	IsActive         bool   `json:"is_active"`
	IsPrivateSession bool   `json:"is_private_session"`
	IsRestricted     bool   `json:"is_restricted"`
	VolumePercent    *int   `json:"volume_percent"`
	SupportsVolume   bool   `json:"supports_volume"`
}

// Volume returns the reported volume or zero when the device omits it.
func (d Device) Volume() int {
	if d.VolumePercent == nil {
		return 0
	}
	return *d.VolumePercent
}

type Context struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
	Href string `json:"href,omitempty"`
}

// PlaybackState is the provider's view of what is playing.
type PlaybackState struct {
	Device               Device   `json:"device"`
	RepeatState          string   `json:"repeat_state"`
	ShuffleState         bool     `json:"shuffle_state"`
	Context              *Context `json:"context"`
	Timestamp            int64    `json:"timestamp"`
	ProgressMs           int      `json:"progress_ms"`
	IsPlaying            bool     `json:"is_playing"`
	Item                 *Track   `json:"item"`
	CurrentlyPlayingType string   `json:"currently_playing_type"`
}

// ItemID returns the playing item's id or "" when nothing is loaded.
func (p *PlaybackState) ItemID() string {
	if p == nil || p.Item == nil {
		return ""
	}
	return p.Item.ID
}

// PlayHistory is one entry of /me/player/recently-played.
type PlayHistory struct {
	Track    Track    `json:"track"`
	PlayedAt string   `json:"played_at"`
	Context  *Context `json:"context"`
}

type recentlyPlayedResponse struct {
	Items []PlayHistory `json:"items"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}
