package clientdata

import "time"

// TTL constants for cached data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLPriceHistory is the default cache expiry for fund price histories
	TTLPriceHistory = 7 * 24 * time.Hour
	// TTLFundMetadata covers expense ratio, fund size and the like, which rarely change
	TTLFundMetadata = 30 * 24 * time.Hour
)
