package platform

// capabilityTable holds the immutable per-platform capability set. Limits
// follow each platform's published documentation.
var capabilityTable = map[Type]Capabilities{
	Facebook: {
		SupportsImages: true, SupportsVideo: true, SupportsScheduling: true,
		MaxCharacters: 63206, MaxHashtags: 30, MaxAttachments: 10,
	},
	Instagram: {
		SupportsImages: true, SupportsVideo: true, SupportsScheduling: true,
		MaxCharacters: 2200, MaxHashtags: 30, MaxAttachments: 10,
	},
	Twitter: {
		SupportsImages: true, SupportsVideo: true, SupportsThreads: true, SupportsPolls: true,
		MaxCharacters: 280, MaxHashtags: 10, MaxAttachments: 4,
	},
	LinkedIn: {
		SupportsImages: true, SupportsVideo: true,
		MaxCharacters: 3000, MaxHashtags: 30, MaxAttachments: 9,
	},
	TikTok: {
		SupportsVideo: true,
		MaxCharacters: 2200, MaxHashtags: 100, MaxAttachments: 1,
	},
	YouTube: {
		SupportsVideo: true, SupportsScheduling: true,
		MaxCharacters: 5000, MaxHashtags: 60, MaxAttachments: 1,
	},
	Reddit: {
		SupportsImages: true, SupportsVideo: true, SupportsPolls: true,
		MaxCharacters: 40000, MaxHashtags: 0, MaxAttachments: 20,
	},
	Mastodon: {
		SupportsImages: true, SupportsVideo: true, SupportsPolls: true, SupportsScheduling: true,
		MaxCharacters: 500, MaxHashtags: 30, MaxAttachments: 4,
	},
	Threads: {
		SupportsImages: true, SupportsVideo: true, SupportsThreads: true,
		MaxCharacters: 500, MaxHashtags: 30, MaxAttachments: 10,
	},
}

// CapabilitiesFor returns the capability set for a platform type. Unknown
// platforms get a zero value; callers validate the type separately.
func CapabilitiesFor(t Type) Capabilities {
	return capabilityTable[t]
}
