package model

// Client is the boutique's customer (the bride). PortalToken is the bearer
// credential for the client portal.
type Client struct {
	ID          string
	TenantID    string
	Name        string
	Email       string
	PortalToken string
	Active      bool
}
