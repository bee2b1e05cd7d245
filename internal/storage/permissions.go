package storage

import (
	"fmt"
	"strings"
)

// Permissions is a set of operations a grant authorises. Only operations that
// create or modify the named object exist; read, list and delete cannot be
// expressed.
type Permissions uint8

const (
	PermissionCreate Permissions = 1 << iota
	PermissionWrite
	PermissionAppend

	permissionAll = PermissionCreate | PermissionWrite | PermissionAppend
)

// UploadPermissions is the only permission set issued for uploads.
const UploadPermissions = PermissionCreate | PermissionWrite | PermissionAppend

// Has reports whether every permission in p is present in the set.
func (ps Permissions) Has(p Permissions) bool {
	return ps&p == p
}

// Validate rejects empty sets and bits outside the known permissions.
func (ps Permissions) Validate() error {
	if ps == 0 {
		return fmt.Errorf("storage: empty permission set")
	}
	if ps&^permissionAll != 0 {
		return fmt.Errorf("storage: unknown permission bits %#x", uint8(ps&^permissionAll))
	}
	return nil
}

// Names lists the permissions in a stable order.
func (ps Permissions) Names() []string {
	var names []string
	if ps.Has(PermissionCreate) {
		names = append(names, "create")
	}
	if ps.Has(PermissionWrite) {
		names = append(names, "write")
	}
	if ps.Has(PermissionAppend) {
		names = append(names, "append")
	}
	return names
}

func (ps Permissions) String() string {
	return strings.Join(ps.Names(), ",")
}
