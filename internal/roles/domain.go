package roles

import "errors"

// ErrUnknownRole indicates a role key outside the fixed storefront roles.
var ErrUnknownRole = errors.New("roles: unknown role")

// Role identifies one of the operational storefront roles.
type Role int

// Storefront roles. The zero value means "no role".
const (
	None Role = iota
	StoreOwner
	StoreManager
	InventoryManager
	SalesAssociate
	CustomerService
	Cashier
)

// Descriptor describes how a role is keyed, stored and displayed.
type Descriptor struct {
	Role        Role
	Key         string
	Column      string
	DisplayName string
}

// Flags mirrors the role columns of a user record.
type Flags struct {
	StoreOwner       bool `json:"is_store_owner"`
	StoreManager     bool `json:"is_store_manager"`
	InventoryManager bool `json:"is_inventory_manager"`
	SalesAssociate   bool `json:"is_sales_associate"`
	CustomerService  bool `json:"is_customer_service"`
	Cashier          bool `json:"is_cashier"`
}

// Has reports whether the flag for role is set.
func (f Flags) Has(role Role) bool {
	switch role {
	case StoreOwner:
		return f.StoreOwner
	case StoreManager:
		return f.StoreManager
	case InventoryManager:
		return f.InventoryManager
	case SalesAssociate:
		return f.SalesAssociate
	case CustomerService:
		return f.CustomerService
	case Cashier:
		return f.Cashier
	default:
		return false
	}
}

// Set updates the flag for role. Unknown roles are ignored.
func (f *Flags) Set(role Role, value bool) {
	switch role {
	case StoreOwner:
		f.StoreOwner = value
	case StoreManager:
		f.StoreManager = value
	case InventoryManager:
		f.InventoryManager = value
	case SalesAssociate:
		f.SalesAssociate = value
	case CustomerService:
		f.CustomerService = value
	case Cashier:
		f.Cashier = value
	}
}

// Any reports whether at least one role flag is set.
func (f Flags) Any() bool {
	return f.Primary() != None
}

// Primary returns the highest ranked role that is set, or None.
func (f Flags) Primary() Role {
	for _, role := range precedence {
		if f.Has(role) {
			return role
		}
	}
	return None
}
