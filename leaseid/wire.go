package leaseid

// Wire names shared by the registry adapters and the client.
const (
	// Header carries the presented lease id on HTTP requests.
	Header = "X-Lease-ID"
	// MetadataKey carries the presented lease id in gRPC metadata.
	MetadataKey = "x-lease-id"

	// StatusHeader is set to StatusSuperseded on a rejected call.
	StatusHeader     = "X-Lease-Status"
	StatusSuperseded = "superseded"
)
