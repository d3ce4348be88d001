package ratelimit

import (
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
)

// Quota is the request budget for one (platform, endpoint) key under one
// tier, over rolling minute/hour/day windows.
type Quota struct {
	PerMinute int
	PerHour   int
	PerDay    int

	// Cooldown is how long the key stays Limited after exceeding quota or
	// receiving a remote throttle signal.
	Cooldown time.Duration

	// MaxWait caps the bounded wait-and-retry in Execute. Waits beyond
	// this surface immediately as an ExceededError.
	MaxWait time.Duration
}

func (q Quota) zero() bool {
	return q.PerMinute == 0 && q.PerHour == 0 && q.PerDay == 0
}

// DefaultTier is assumed when a platform has no tier configured.
const DefaultTier = "basic"

// quotaTable maps platform -> tier -> endpoint -> quota. The "*" endpoint
// is the platform-wide fallback. Values follow each platform's published
// limits for the named tier.
var quotaTable = map[platform.Type]map[string]map[string]Quota{
	platform.Twitter: {
		"basic": {
			"*":             {PerMinute: 5, PerHour: 50, PerDay: 500, Cooldown: 60 * time.Second, MaxWait: 60 * time.Second},
			"tweets.write":  {PerMinute: 3, PerHour: 50, PerDay: 200, Cooldown: 60 * time.Second, MaxWait: 60 * time.Second},
			"tweets.search": {PerMinute: 4, PerHour: 60, PerDay: 500, Cooldown: 60 * time.Second, MaxWait: 60 * time.Second},
			"media.upload":  {PerMinute: 2, PerHour: 30, PerDay: 100, Cooldown: 60 * time.Second, MaxWait: 60 * time.Second},
		},
		"pro": {
			"*":             {PerMinute: 50, PerHour: 1000, PerDay: 10000, Cooldown: 30 * time.Second, MaxWait: 60 * time.Second},
			"tweets.write":  {PerMinute: 30, PerHour: 600, PerDay: 5000, Cooldown: 30 * time.Second, MaxWait: 60 * time.Second},
			"tweets.search": {PerMinute: 60, PerHour: 1200, PerDay: 15000, Cooldown: 30 * time.Second, MaxWait: 60 * time.Second},
		},
		"enterprise": {
			"*": {PerMinute: 500, PerHour: 10000, PerDay: 100000, Cooldown: 15 * time.Second, MaxWait: 60 * time.Second},
		},
	},
	platform.LinkedIn: {
		"basic": {
			"*":           {PerMinute: 30, PerHour: 500, PerDay: 5000, Cooldown: 5 * time.Minute, MaxWait: 10 * time.Minute},
			"posts.write": {PerMinute: 10, PerHour: 100, PerDay: 1000, Cooldown: 5 * time.Minute, MaxWait: 10 * time.Minute},
		},
	},
	platform.Mastodon: {
		// Mastodon's documented default is 300 requests per 5 minutes per
		// account; the hourly budget is the effective constraint.
		"basic": {
			"*": {PerMinute: 60, PerHour: 3600, PerDay: 50000, Cooldown: 5 * time.Minute, MaxWait: time.Hour},
		},
	},
	platform.Facebook: {
		"basic": {
			"*": {PerMinute: 60, PerHour: 200, PerDay: 4800, Cooldown: 10 * time.Minute, MaxWait: time.Hour},
		},
	},
	platform.Instagram: {
		"basic": {
			"*": {PerMinute: 60, PerHour: 200, PerDay: 4800, Cooldown: 10 * time.Minute, MaxWait: time.Hour},
		},
	},
	platform.Reddit: {
		"basic": {
			"*": {PerMinute: 100, PerHour: 6000, PerDay: 100000, Cooldown: 60 * time.Second, MaxWait: 60 * time.Second},
		},
	},
	platform.TikTok: {
		"basic": {
			"*": {PerMinute: 10, PerHour: 600, PerDay: 10000, Cooldown: 5 * time.Minute, MaxWait: 10 * time.Minute},
		},
	},
	platform.YouTube: {
		"basic": {
			"*": {PerMinute: 30, PerHour: 1000, PerDay: 10000, Cooldown: 10 * time.Minute, MaxWait: time.Hour},
		},
	},
	platform.Threads: {
		"basic": {
			"*": {PerMinute: 60, PerHour: 200, PerDay: 4800, Cooldown: 10 * time.Minute, MaxWait: time.Hour},
		},
	},
}

// fallbackQuota is used when neither platform nor tier is in the table.
var fallbackQuota = Quota{
	PerMinute: 30,
	PerHour:   500,
	PerDay:    5000,
	Cooldown:  60 * time.Second,
	MaxWait:   60 * time.Second,
}

func lookupQuota(p platform.Type, tier, endpoint string) Quota {
	tiers, ok := quotaTable[p]
	if !ok {
		return fallbackQuota
	}
	endpoints, ok := tiers[tier]
	if !ok {
		endpoints, ok = tiers[DefaultTier]
		if !ok {
			return fallbackQuota
		}
	}
	if q, ok := endpoints[endpoint]; ok && !q.zero() {
		return q
	}
	if q, ok := endpoints["*"]; ok && !q.zero() {
		return q
	}
	return fallbackQuota
}
