package desiredfile

// File is the top-level structure of the desired listings file
type File struct {
	Accounts map[string]AccountConfig `yaml:"accounts"`
}

// AccountConfig declares the listings of one account
type AccountConfig struct {
	// Agent is "running", "stopped" or empty to leave the agent alone
	Agent string `yaml:"agent,omitempty"`
	// Exclusive removes stored desired listings missing from the file
	Exclusive bool            `yaml:"exclusive,omitempty"`
	Listings  []ListingConfig `yaml:"listings"`
}

// ListingConfig is one listing entry. Amounts are read as text so they
// keep their exact decimal value.
type ListingConfig struct {
	ID         string                 `yaml:"id,omitempty"`
	Item       map[string]interface{} `yaml:"item,omitempty"`
	Currencies CurrenciesConfig       `yaml:"currencies"`
	Details    string                 `yaml:"details,omitempty"`
	Priority   *int                   `yaml:"priority,omitempty"`
	Force      bool                   `yaml:"force,omitempty"`
}

// CurrenciesConfig is the price of a listing
type CurrenciesConfig struct {
	Keys  string `yaml:"keys,omitempty"`
	Metal string `yaml:"metal,omitempty"`
}
