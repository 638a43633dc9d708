package store

// TableDef declares a cached entity table and its secondary indexes. Index
// names map to the attribute path whose value is extracted at write time.
type TableDef struct {
	Name    string
	Indexes map[string]string
}

// Schema fixes the set of cache tables at store-open time. Changing it after
// records exist requires a full cache rebuild; there is no migration path.
type Schema []TableDef

func (s Schema) table(name string) (TableDef, bool) {
	for _, def := range s {
		if def.Name == name {
			return def, true
		}
	}
	return TableDef{}, false
}

// Tables lists the declared table names.
func (s Schema) Tables() []string {
	names := make([]string, 0, len(s))
	for _, def := range s {
		names = append(names, def.Name)
	}
	return names
}

// DefaultSchema mirrors the entity tables the warehouse client works with.
func DefaultSchema() Schema {
	return Schema{
		{Name: "requests", Indexes: map[string]string{
			"by-status":   "status",
			"by-location": "location_id",
		}},
		{Name: "stock_items", Indexes: map[string]string{
			"by-location": "location_id",
		}},
		{Name: "users"},
		{Name: "locations"},
		{Name: "teams"},
		{Name: "employee_inventory", Indexes: map[string]string{
			"by-employee": "employee_id",
		}},
		{Name: "team_inventory", Indexes: map[string]string{
			"by-team": "team_id",
		}},
		{Name: "biometric_templates", Indexes: map[string]string{
			"by-user": "user_id",
		}},
	}
}
