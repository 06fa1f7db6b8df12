package shared

// Capabilities checked by the storefront routes. Each one is granted by role flags
// of the acting user, see rbac.Grants.
const (
	CapStoreOwner          = "staff.store_owner"
	CapStoreManager        = "staff.store_manager"
	CapBootstrapStoreOwner = "staff.bootstrap_store_owner"
)

// CoreScopes lists all capabilities known to the platform.
func CoreScopes() []string {
	return []string{
		CapStoreOwner,
		CapStoreManager,
		CapBootstrapStoreOwner,
	}
}
