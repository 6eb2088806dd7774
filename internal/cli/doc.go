// Package cli implements storectl, the operator command line for the store:
// schema migrations, catalog seeding from YAML, admin bootstrap and quick
// order and coupon listings.
package cli
