package plan

// Tier identifiers. Free is the fallback for unknown, expired and
// brand-new accounts.
const (
	Free      = "free"
	Daily     = "daily"
	Monthly   = "monthly"
	Bimonthly = "bimonthly"
	Yearly    = "yearly"
	Lifetime  = "lifetime"
)

// Sentinel thresholds for "unlimited" quota fields. Every quota comparison
// in the service goes through the helpers below instead of re-deriving the
// convention.
const (
	unlimitedCountThreshold = 100_000
	unlimitedBytesThreshold = int64(100) << 40 // 100 TiB
	unlimitedDaysThreshold  = 30_000
)

const gib = int64(1) << 30

// Tier is one statically configured plan
type Tier struct {
	ID               string
	Name             string
	Price            int
	DurationDays     int
	StorageBytes     int64
	MaxLinksPerMonth int
	LinkExpiryDays   int
	MaxFilesPerLink  int
	MaxFileSizeBytes int64
}

var catalog = map[string]Tier{
	Free: {
		ID:               Free,
		Name:             "Free Tier",
		Price:            0,
		DurationDays:     36500,
		StorageBytes:     200 * gib,
		MaxLinksPerMonth: 10,
		LinkExpiryDays:   60,
		MaxFilesPerLink:  20,
		MaxFileSizeBytes: 2 * gib,
	},
	Daily: {
		ID:               Daily,
		Name:             "Daily Pass",
		Price:            40,
		DurationDays:     1,
		StorageBytes:     200 * gib,
		MaxLinksPerMonth: 999999,
		LinkExpiryDays:   180,
		MaxFilesPerLink:  999999,
		MaxFileSizeBytes: 4 * gib,
	},
	Monthly: {
		ID:               Monthly,
		Name:             "Monthly Starter",
		Price:            299,
		DurationDays:     30,
		StorageBytes:     999999 * gib,
		MaxLinksPerMonth: 999999,
		LinkExpiryDays:   240,
		MaxFilesPerLink:  999999,
		MaxFileSizeBytes: 4 * gib,
	},
	Bimonthly: {
		ID:               Bimonthly,
		Name:             "Bi-Monthly Pro",
		Price:            499,
		DurationDays:     60,
		StorageBytes:     999999 * gib,
		MaxLinksPerMonth: 999999,
		LinkExpiryDays:   365,
		MaxFilesPerLink:  999999,
		MaxFileSizeBytes: 4 * gib,
	},
	Yearly: {
		ID:               Yearly,
		Name:             "Yearly Premium",
		Price:            999,
		DurationDays:     365,
		StorageBytes:     999999 * gib,
		MaxLinksPerMonth: 999999,
		LinkExpiryDays:   365,
		MaxFilesPerLink:  999999,
		MaxFileSizeBytes: 4 * gib,
	},
	Lifetime: {
		ID:               Lifetime,
		Name:             "Lifetime Access",
		Price:            2999,
		DurationDays:     36500,
		StorageBytes:     999999 * gib,
		MaxLinksPerMonth: 999999,
		LinkExpiryDays:   36500,
		MaxFilesPerLink:  999999,
		MaxFileSizeBytes: 4 * gib,
	},
}

// Get returns the tier for id, falling back to Free for unknown ids
func Get(id string) Tier {
	if t, ok := catalog[id]; ok {
		return t
	}
	return catalog[Free]
}

// Exists reports whether id names a configured tier
func Exists(id string) bool {
	_, ok := catalog[id]
	return ok
}

// All returns every configured tier
func All() []Tier {
	tiers := make([]Tier, 0, len(catalog))
	for _, t := range catalog {
		tiers = append(tiers, t)
	}
	return tiers
}

// IsPremium reports whether id is a paid tier
func IsPremium(id string) bool {
	return Exists(id) && id != Free
}

// UnlimitedCount reports whether a count quota means "no limit"
func UnlimitedCount(n int) bool {
	return n > unlimitedCountThreshold
}

// UnlimitedBytes reports whether a byte quota means "no limit"
func UnlimitedBytes(n int64) bool {
	return n > unlimitedBytesThreshold
}

// UnlimitedDays reports whether an expiry window means "never expires"
func UnlimitedDays(n int) bool {
	return n > unlimitedDaysThreshold
}
