// Package plugins bundles the sample feature modules shipped with modhooks.
// Each subdirectory holds a module manifest next to the plugin code, so the
// directory doubles as a module root for discovery.
package plugins

import (
	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/plugins/achievements"
	"github.com/GoCodeAlone/modhooks/plugins/combat"
	"github.com/GoCodeAlone/modhooks/plugins/currency"
)

// DefaultCatalog returns a catalog with every bundled plugin registered.
func DefaultCatalog() *modhooks.Catalog {
	c := modhooks.NewCatalog()
	c.MustRegister(currency.ID, currency.New)
	c.MustRegister(combat.ID, combat.New)
	c.MustRegister(achievements.ID, achievements.New)
	return c
}
