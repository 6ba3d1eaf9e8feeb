package digitaloceanprovider

import (
	"sigs.k8s.io/external-dns/endpoint"
)

const (
	CREATE = "CREATE"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)

// changeTask represents a single DNS record change bound to its zone
type changeTask struct {
	action    string
	zone      string
	change    *endpoint.Endpoint
	oldChange *endpoint.Endpoint // Used for update operations to track the old record state
}
