package models

// All lists every persisted model in dependency order for auto migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Subcategory{},
		&Listing{},
		&ListingImage{},
		&BugReport{},
		&BugReportComment{},
		&BlacklistedToken{},
		&PageView{},
		&OrphanedFile{},
	}
}
