package services

// CompanyProfile is the company research payload that seeds every prediction
// and retrieval query for a run.
type CompanyProfile struct {
	CompanyName        string   `json:"company_name"`
	Sector             string   `json:"sector"`
	SubSector          string   `json:"sub_sector,omitempty"`
	Description        string   `json:"description,omitempty"`
	CountryOfOrigin    string   `json:"country_of_origin,omitempty"`
	Size               string   `json:"size,omitempty"`
	Revenue            string   `json:"revenue,omitempty"`
	GlobalPresence     string   `json:"global_presence,omitempty"`
	OperatingCountries []string `json:"operating_countries,omitempty"`
	Compliance         []string `json:"compliance_requirements,omitempty"`
}

// IntakeConfig is what the user supplied on the intake form.
type IntakeConfig struct {
	CloudProvider       string   `json:"cloud_provider"`
	SubSector           string   `json:"sub_sector,omitempty"`
	ComplianceStandards []string `json:"compliance_standards,omitempty"`
	Environments        []string `json:"environments,omitempty"`
	BusinessUnits       []string `json:"business_units,omitempty"`
	Regions             []string `json:"regions,omitempty"`
	DataResidency       string   `json:"data_residency_requirements,omitempty"`
}

// Cloud returns the configured provider, defaulting to AWS.
func (c IntakeConfig) Cloud() string {
	if c.CloudProvider == "" {
		return "AWS"
	}
	return c.CloudProvider
}
