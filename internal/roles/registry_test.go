package roles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeKnownRoles(t *testing.T) {
	reg := NewRegistry()
	cases := map[string]struct {
		role    Role
		column  string
		display string
	}{
		"store_owner":       {StoreOwner, "is_store_owner", "store owner"},
		"store_manager":     {StoreManager, "is_store_manager", "store manager"},
		"inventory_manager": {InventoryManager, "is_inventory_manager", "inventory manager"},
		"sales_associate":   {SalesAssociate, "is_sales_associate", "sales associate"},
		"customer_service":  {CustomerService, "is_customer_service", "customer service"},
		"cashier":           {Cashier, "is_cashier", "cashier"},
	}
	for key, want := range cases {
		t.Run(key, func(t *testing.T) {
			d, err := reg.Describe(key)
			require.NoError(t, err)
			assert.Equal(t, want.role, d.Role)
			assert.Equal(t, key, d.Key)
			assert.Equal(t, want.column, d.Column)
			assert.Equal(t, want.display, d.DisplayName)
		})
	}
}

func TestDescribeUnknownRole(t *testing.T) {
	reg := NewRegistry()
	for _, key := range []string{"", "admin", "STORE_OWNER", "is_cashier", "assistant_store_manager"} {
		_, err := reg.Describe(key)
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, ErrUnknownRole), key)
	}
	_, err := reg.Lookup(None)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestPrecedenceOrder(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []Role{StoreOwner, StoreManager, InventoryManager, SalesAssociate, CustomerService, Cashier}, reg.Precedence())
	assert.Equal(t, []string{"store_owner", "store_manager", "inventory_manager", "sales_associate", "customer_service", "cashier"}, reg.Keys())

	order := reg.Precedence()
	order[0] = Cashier
	assert.Equal(t, StoreOwner, reg.Precedence()[0], "precedence must not be mutable through the returned slice")
}

func TestFlagsDispatch(t *testing.T) {
	var f Flags
	assert.False(t, f.Any())
	assert.Equal(t, None, f.Primary())

	for _, role := range NewRegistry().Precedence() {
		f.Set(role, true)
		assert.True(t, f.Has(role))
		f.Set(role, false)
		assert.False(t, f.Has(role))
	}

	f.Set(None, true)
	assert.False(t, f.Any())
}

func TestFlagsPrimaryUsesPrecedence(t *testing.T) {
	f := Flags{Cashier: true, InventoryManager: true}
	assert.Equal(t, InventoryManager, f.Primary())

	f.StoreOwner = true
	assert.Equal(t, StoreOwner, f.Primary())

	assert.Equal(t, Cashier, Flags{Cashier: true}.Primary())
}
