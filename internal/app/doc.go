// Package app provides the application service layer.
//
// Each service orchestrates one area of the store: catalog, cart, coupons,
// checkout, orders, media, reviews, users and the back-office dashboard.
// Services depend on domain interfaces, not concrete adapters. They return
// domain sentinel errors for missing or conflicting records and structured
// validation errors for bad input.
package app
