package core

// Role is a semantic column role the pipeline needs.
type Role string

// Column roles.
const (
	RoleCustomer Role = "customer"
	RoleDate     Role = "date"
	RoleQuantity Role = "quantity"
)

// SchemaMapping binds roles to concrete column names of a Table.
// When YearCol and MonthCol are both set the date is split across two
// columns and DateCol equals YearCol.
type SchemaMapping struct {
	CustomerCol string `json:"customer_col"`
	DateCol     string `json:"date_col"`
	YearCol     string `json:"year_col,omitempty"`
	MonthCol    string `json:"month_col,omitempty"`
	QuantityCol string `json:"quantity_col"`
}

// Split reports whether the date is represented by year and month columns.
func (m SchemaMapping) Split() bool {
	return m.YearCol != "" && m.MonthCol != ""
}
