package domain

// PriceLevel classifies a visitor's country into one of two pricing bands.
type PriceLevel string

const (
	// PriceLevelHigh applies to countries on the higher cost-of-living list.
	PriceLevelHigh PriceLevel = "high"
	// PriceLevelLow applies to every other country.
	PriceLevelLow PriceLevel = "low"
)

// ClassTier identifies a lesson offering priced by the site.
type ClassTier string

const (
	// TierIndividualStandard is a one-on-one standard lesson.
	TierIndividualStandard ClassTier = "individual_standard"
	// TierIndividualConversation is a one-on-one conversation practice lesson.
	TierIndividualConversation ClassTier = "individual_conversation"
	// TierGroup is a group class seat.
	TierGroup ClassTier = "group"
)

// ClassTiers lists every known tier in display order.
func ClassTiers() []ClassTier {
	return []ClassTier{TierIndividualStandard, TierIndividualConversation, TierGroup}
}

// PriceTable maps each class tier to its per-lesson amount in EUR.
type PriceTable map[ClassTier]float64

// DefaultHighIncomeCountries is the built-in tier table: ISO-3166 alpha-2 codes
// of countries billed at the high price band. Deployments can override the set
// through configuration without a redeploy.
func DefaultHighIncomeCountries() []string {
	return []string{
		// EU
		"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR",
		"DE", "GR", "HU", "IE", "IT", "LV", "LT", "LU", "MT", "NL",
		"PL", "PT", "RO", "SK", "SI", "ES", "SE",
		// Rest of western Europe
		"GB", "IS", "NO", "CH", "LI", "AD", "MC", "SM",
		// North America and Oceania
		"US", "CA", "AU", "NZ",
		// Developed Asia
		"JP", "KR", "SG", "HK", "TW", "MO", "BN",
		// Gulf states
		"AE", "SA", "QA", "KW", "BH", "OM",
		// Other developed economies
		"IL", "UY", "CL",
	}
}

// PricingQuote is the per-request pricing document returned to the client.
// It is computed fresh on every request and never persisted.
type PricingQuote struct {
	Country       string
	Level         PriceLevel
	Currency      string
	Symbol        string
	Prices        PriceTable
	IsDevelopment bool
}
