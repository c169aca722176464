package domain

// Plan describes a purchasable AI prompt package.
type Plan struct {
	Ref         string `json:"ref"`         // Stable plan reference used by the payment API
	Name        string `json:"name"`        // Display name
	Description string `json:"description"` // Short marketing description
	Prompts     int    `json:"prompts"`     // Prompt quota granted on purchase
	Price       int64  `json:"price"`       // Price in whole KES
	Popular     bool   `json:"popular"`     // Highlighted on the pricing page
}

// Plans is the fixed catalog of purchasable packages, cheapest first.
var Plans = []Plan{
	{Ref: "starter", Name: "Starter", Description: "Try out the AI tools with a small package", Prompts: 50, Price: 500},
	{Ref: "student_pro", Name: "Basic", Description: "Perfect for students and individual users", Prompts: 150, Price: 1000},
	{Ref: "enterprise", Name: "Enterprise", Description: "Best for teams and professional use", Prompts: 1000, Price: 3000, Popular: true},
}

// PlanByRef looks up a plan by its reference.
func PlanByRef(ref string) (Plan, bool) {
	// Scan the catalog; it is tiny and fixed
	for _, p := range Plans {
		if p.Ref == ref {
			return p, true
		}
	}
	return Plan{}, false
}
