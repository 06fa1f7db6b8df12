package roles

import (
	"fmt"
	"strings"
)

// precedence ranks roles when a user holds several flags. Dismissal and the staff
// directory resolve "the" role of a user by walking this order.
var precedence = [...]Role{
	StoreOwner,
	StoreManager,
	InventoryManager,
	SalesAssociate,
	CustomerService,
	Cashier,
}

var descriptors = map[Role]Descriptor{
	StoreOwner:       {Role: StoreOwner, Key: "store_owner", Column: "is_store_owner", DisplayName: "store owner"},
	StoreManager:     {Role: StoreManager, Key: "store_manager", Column: "is_store_manager", DisplayName: "store manager"},
	InventoryManager: {Role: InventoryManager, Key: "inventory_manager", Column: "is_inventory_manager", DisplayName: "inventory manager"},
	SalesAssociate:   {Role: SalesAssociate, Key: "sales_associate", Column: "is_sales_associate", DisplayName: "sales associate"},
	CustomerService:  {Role: CustomerService, Key: "customer_service", Column: "is_customer_service", DisplayName: "customer service"},
	Cashier:          {Role: Cashier, Key: "cashier", Column: "is_cashier", DisplayName: "cashier"},
}

// Registry is the read-only role table shared by the processor and directory.
type Registry struct {
	byRole map[Role]Descriptor
	byKey  map[string]Descriptor
	order  []Role
}

// NewRegistry builds the registry. Call it once at start-up and inject it.
func NewRegistry() *Registry {
	reg := &Registry{
		byRole: make(map[Role]Descriptor, len(descriptors)),
		byKey:  make(map[string]Descriptor, len(descriptors)),
		order:  precedence[:],
	}
	for _, role := range precedence {
		d := descriptors[role]
		reg.byRole[role] = d
		reg.byKey[d.Key] = d
	}
	return reg
}

// Describe resolves a role key such as "store_manager".
func (r *Registry) Describe(key string) (Descriptor, error) {
	d, ok := r.byKey[strings.TrimSpace(key)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownRole, key)
	}
	return d, nil
}

// Lookup returns the descriptor of role.
func (r *Registry) Lookup(role Role) (Descriptor, error) {
	d, ok := r.byRole[role]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}
	return d, nil
}

// Precedence lists roles from highest to lowest rank.
func (r *Registry) Precedence() []Role {
	out := make([]Role, len(r.order))
	copy(out, r.order)
	return out
}

// Keys lists role keys in precedence order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.order))
	for _, role := range r.order {
		keys = append(keys, r.byRole[role].Key)
	}
	return keys
}

// Key returns the key of role, or an empty string for None.
func (r *Registry) Key(role Role) string {
	return r.byRole[role].Key
}
