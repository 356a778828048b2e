// Package domains compiles in every business domain. Importing it runs
// their registrations.
package domains

import (
	_ "keystone/domains/users"
)
