package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"
	HHxRequest    = "Hx-Request"

	CTypeHTML   = "text/html"
	CTypeJSON   = "application/json"
	CTypeText   = "text/plain"
	CTypeStream = "text/event-stream"
)
