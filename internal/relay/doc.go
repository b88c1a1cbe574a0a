// Package relay contains HTTP clients for the external services the gateway
// forwards work to: the social agent service that reads and posts updates,
// and the token service that deploys and transfers tokens on chains the
// gateway does not sign for itself.
package relay
