// Package db holds the storefront schema and the default seed catalog.
package db

import _ "embed"

// Schema is the idempotent DDL for products, rates, carts, orders, coupons
// and API keys.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the catalog loaded by seed-db when no products file is given.
//
//go:embed seed/products.json
var SeedProducts []byte
