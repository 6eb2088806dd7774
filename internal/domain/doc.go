// Package domain defines the storefront's core types and the interfaces its
// adapters implement.
//
// Files are concept-oriented (catalog.go, cart.go, order.go, coupon.go, ...).
// Besides small invariant helpers such as the order status machine, there is
// no implementation code here. Keeping the contracts in one leaf package
// avoids circular imports between app and the adapters.
package domain
