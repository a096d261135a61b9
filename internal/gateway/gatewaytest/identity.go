package gatewaytest

// Identity is a fixed gateway.Identity
type Identity struct {
	ID      string
	Service bool
}

func (i Identity) UserID() string  { return i.ID }
func (i Identity) IsService() bool { return i.Service }

// User returns an identity for the given user id
func User(id string) Identity { return Identity{ID: id} }

// ServiceIdentity returns an unrestricted identity
func ServiceIdentity() Identity { return Identity{Service: true} }
