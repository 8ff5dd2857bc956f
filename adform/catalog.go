package adform

// Category offered by the form's category selector.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const DefaultRegion = "Greater Accra"

var Categories = []Category{
	{ID: "vehicles", Name: "Vehicles"},
	{ID: "property", Name: "Property"},
	{ID: "phones", Name: "Mobile Phones"},
	{ID: "electronics", Name: "Electronics"},
	{ID: "furniture", Name: "Home & Garden"},
	{ID: "fashion", Name: "Fashion"},
	{ID: "jobs", Name: "Jobs"},
	{ID: "services", Name: "Services"},
	{ID: "beauty", Name: "Beauty"},
	{ID: "pets", Name: "Pets"},
}

var Regions = []string{
	DefaultRegion, "Ashanti", "Western", "Central", "Eastern",
	"Northern", "Volta", "Bono", "Upper East", "Upper West",
}
