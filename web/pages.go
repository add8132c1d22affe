package web

type plan struct {
	Slug     string
	Name     string
	Price    int
	Listings string
	Features []string
	Popular  bool
}

var plans = []plan{
	{
		Slug:     "starter",
		Name:     "Starter",
		Price:    49,
		Listings: "Up to 1,000 active listings",
		Features: []string{"Rule-based repricing", "Hourly competitor checks", "Email support"},
	},
	{
		Slug:     "growth",
		Name:     "Growth",
		Price:    99,
		Listings: "Up to 10,000 active listings",
		Features: []string{"Algorithmic Buy Box repricing", "Repricing every 2 minutes", "Competitor insights", "Feedback automation"},
		Popular:  true,
	},
	{
		Slug:     "agency",
		Name:     "Agency",
		Price:    249,
		Listings: "Unlimited listings across client accounts",
		Features: []string{"Everything in Growth", "Client task board", "Multichannel listings", "Dedicated success manager"},
	},
}

func planBySlug(slug string) (plan, bool) {
	for _, p := range plans {
		if p.Slug == slug {
			return p, true
		}
	}
	return plan{}, false
}

type feature struct {
	Slug    string
	Title   string
	Summary string
	Points  []string
}

var features = []feature{
	{
		Slug:    "repricing",
		Title:   "Algorithmic repricing",
		Summary: "Win the Buy Box at the highest price the market allows, not the lowest.",
		Points:  []string{"Min and max price guards per SKU", "Strategies per marketplace", "Repricing within minutes of a competitor change"},
	},
	{
		Slug:    "competitors",
		Title:   "Competitor tracking",
		Summary: "See who holds the Buy Box, at what price and with which fulfilment method.",
		Points:  []string{"Offer history per ASIN", "FBA and FBM aware rules", "Alerts when a new seller joins a listing"},
	},
	{
		Slug:    "analytics",
		Title:   "Buy Box analytics",
		Summary: "Track win rate, margin and sales velocity for every listing.",
		Points:  []string{"Daily win-rate reports", "Profit after fees", "Exports to CSV"},
	},
	{
		Slug:    "feedback",
		Title:   "Feedback automation",
		Summary: "Ask buyers for reviews at the right moment, within Amazon's terms.",
		Points:  []string{"Request a Review integration", "Order based timing", "Opt-out handling"},
	},
	{
		Slug:    "multichannel",
		Title:   "Multichannel listings",
		Summary: "Publish your catalog to other marketplaces from the same dashboard.",
		Points:  []string{"Shared inventory", "Per channel pricing rules", "Order sync"},
	},
}

// dashboardFeature is a dashboard section that is not built yet.
type dashboardFeature struct {
	Slug string
	Key  string
}

var dashboardFeatures = []dashboardFeature{
	{Slug: "orders", Key: "dashboard.orders"},
	{Slug: "competitors", Key: "dashboard.competitors"},
	{Slug: "feedback", Key: "dashboard.feedback"},
	{Slug: "reports", Key: "dashboard.reports"},
	{Slug: "automations", Key: "dashboard.automations"},
	{Slug: "app-store", Key: "dashboard.appStore"},
	{Slug: "import", Key: "dashboard.import"},
	{Slug: "multichannel", Key: "dashboard.multichannel"},
}

func dashboardFeatureBySlug(slug string) (dashboardFeature, bool) {
	for _, f := range dashboardFeatures {
		if f.Slug == slug {
			return f, true
		}
	}
	return dashboardFeature{}, false
}

type legalSection struct {
	Heading    string
	Paragraphs []string
}

type legalPage struct {
	TitleKey string
	Updated  string
	Sections []legalSection
}

var legalPages = map[string]legalPage{
	"privacy": {
		TitleKey: "legal.privacy",
		Updated:  "2026-09-01",
		Sections: []legalSection{
			{Heading: "What we collect", Paragraphs: []string{
				"We store the account details you give us and the marketplace data needed to reprice your listings.",
				"We do not sell personal data.",
			}},
			{Heading: "How we use it", Paragraphs: []string{
				"Marketplace data is used only to calculate prices, reports and notifications for your account.",
			}},
			{Heading: "Your rights", Paragraphs: []string{
				"You can request a copy or the deletion of your data at any time through the contact page.",
			}},
		},
	},
	"terms": {
		TitleKey: "legal.terms",
		Updated:  "2026-09-01",
		Sections: []legalSection{
			{Heading: "Service", Paragraphs: []string{
				"RepriceLab provides repricing software. You remain responsible for the prices published on your listings.",
			}},
			{Heading: "Billing", Paragraphs: []string{
				"Plans are billed monthly after the free trial. You may cancel before the next billing date.",
			}},
		},
	},
	"accessibility": {
		TitleKey: "legal.accessibility",
		Updated:  "2026-09-01",
		Sections: []legalSection{
			{Heading: "Our commitment", Paragraphs: []string{
				"We aim to meet WCAG 2.1 level AA across the site and the dashboard.",
			}},
			{Heading: "Feedback", Paragraphs: []string{
				"If something is hard to use, tell us through the contact page and we will respond within two business days.",
			}},
		},
	},
}
