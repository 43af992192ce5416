package platform

import "contentstudio/internal/catalog"

// Profile 平台排版与能力约束
type Profile struct {
	Platform       catalog.PlatformID
	MaxTextLength  int // 按字符计
	MaxHashtags    int
	MaxMedia       int
	RequiresMedia  bool
	SupportsThread bool // 推文串按条发布
	SupportsDelete bool
}

// DefaultProfiles 各平台默认约束
var DefaultProfiles = map[catalog.PlatformID]Profile{
	catalog.PlatformInstagram: {
		Platform:      catalog.PlatformInstagram,
		MaxTextLength: 2200,
		MaxHashtags:   30,
		MaxMedia:      10,
		RequiresMedia: true,
	},
	catalog.PlatformFacebook: {
		Platform:       catalog.PlatformFacebook,
		MaxTextLength:  63206,
		MaxHashtags:    30,
		MaxMedia:       10,
		SupportsDelete: true,
	},
	catalog.PlatformLinkedIn: {
		Platform:       catalog.PlatformLinkedIn,
		MaxTextLength:  3000,
		MaxHashtags:    10,
		MaxMedia:       9,
		SupportsDelete: true,
	},
	catalog.PlatformTwitter: {
		Platform:       catalog.PlatformTwitter,
		MaxTextLength:  280,
		MaxHashtags:    10,
		MaxMedia:       4,
		SupportsThread: true,
		SupportsDelete: true,
	},
	catalog.PlatformTikTok: {
		Platform:      catalog.PlatformTikTok,
		MaxTextLength: 2200,
		MaxHashtags:   30,
		MaxMedia:      1,
		RequiresMedia: true,
	},
	catalog.PlatformThreads: {
		Platform:       catalog.PlatformThreads,
		MaxTextLength:  500,
		MaxHashtags:    10,
		MaxMedia:       10,
		SupportsThread: true,
		SupportsDelete: true,
	},
}
